package camera

import (
	"context"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
)

// カラーバーの色（左から）
var barColors = []color.RGBA{
	{R: 192, G: 192, B: 192, A: 255},
	{R: 192, G: 192, B: 0, A: 255},
	{R: 0, G: 192, B: 192, A: 255},
	{R: 0, G: 192, B: 0, A: 255},
	{R: 192, G: 0, B: 192, A: 255},
	{R: 192, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 192, A: 255},
}

// TestPatternSource はカラーバーを生成する Source 実装
// カメラのない環境でのデモや動作確認に使う
type TestPatternSource struct {
	baseSource

	// StartDelay はカメラ取得にかかる時間を模擬する
	StartDelay time.Duration
	// StartErr が設定されていると Start はそのエラーを返す
	StartErr error

	bars      *image.RGBA
	startedAt time.Time
}

// NewTestPatternSource は新しいTestPatternSourceを作成する
func NewTestPatternSource(settings Settings) *TestPatternSource {
	settings = withDefaults(SourceConfig{Settings: settings}).Settings

	return &TestPatternSource{
		baseSource: baseSource{
			info: SourceInfo{
				ID:          generateSourceID(),
				Name:        "テストパターン",
				Type:        SourceTypeTestPattern,
				Driver:      "synthetic",
				Description: "カラーバーのテスト映像",
				Width:       settings.Width,
				Height:      settings.Height,
			},
			settings: settings,
			status:   StatusInactive,
		},
		bars: renderBars(settings.Width, settings.Height),
	}
}

// Start は映像の生成を開始する
func (s *TestPatternSource) Start(ctx context.Context) error {
	if s.StartDelay > 0 {
		timer := time.NewTimer(s.StartDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StartErr != nil {
		s.status = StatusError
		return s.StartErr
	}
	s.status = StatusActive
	s.startedAt = time.Now()
	return nil
}

// Stop は映像の生成を停止する
func (s *TestPatternSource) Stop(_ context.Context) error {
	s.setStatus(StatusInactive)
	return nil
}

// Fail は映像が途切れた状態にする
func (s *TestPatternSource) Fail() {
	s.setStatus(StatusError)
}

// LatestFrame は現在時刻に応じて白い帯が横に流れるカラーバーを返す
func (s *TestPatternSource) LatestFrame() (image.Image, error) {
	s.mu.RLock()
	status := s.status
	startedAt := s.startedAt
	fps := s.settings.FPS
	s.mu.RUnlock()

	if status != StatusActive {
		return nil, ErrNoFrame
	}

	b := s.bars.Bounds()
	frame := image.NewRGBA(b)
	draw.Draw(frame, b, s.bars, image.Point{}, draw.Src)

	// 経過フレーム数で帯の位置を決める
	n := int(time.Since(startedAt) / (time.Second / time.Duration(fps)))
	band := b.Dx() / 20
	if band < 1 {
		band = 1
	}
	x := (n * band) % b.Dx()
	draw.Draw(frame, image.Rect(x, b.Dy()*3/4, x+band, b.Dy()), image.White, image.Point{}, draw.Src)

	return frame, nil
}

func renderBars(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, c := range barColors {
		x0 := width * i / len(barColors)
		x1 := width * (i + 1) / len(barColors)
		draw.Draw(img, image.Rect(x0, 0, x1, height), image.NewUniform(c), image.Point{}, draw.Src)
	}
	return img
}
