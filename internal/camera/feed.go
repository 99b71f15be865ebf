package camera

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// FeedState はフィードの状態のスナップショット
type FeedState struct {
	Active    bool        `json:"active"`
	Starting  bool        `json:"starting"`
	Muted     bool        `json:"muted"`
	Paused    bool        `json:"paused"`
	Status    Status      `json:"status"`
	Source    *SourceInfo `json:"source,omitempty"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
}

// DeviceSelector はカメラ取得時に使うデバイスを決める
type DeviceSelector interface {
	SelectDevice(ctx context.Context, device string) (DeviceInfo, error)
}

// Feed はライブ映像フィードのライフサイクルを管理する
// 同時に有効なフィードは1つだけ
type Feed struct {
	factory        SourceFactory
	sourceType     SourceType
	config         SourceConfig
	acquireTimeout time.Duration
	selector       DeviceSelector

	mu          sync.RWMutex
	source      Source
	starting    bool
	cancelStart context.CancelFunc
	muted       bool
	paused      bool
	frozen      image.Image
	startedAt   time.Time
}

// NewFeed は新しいFeedを作成する
func NewFeed(factory SourceFactory, sourceType SourceType, config SourceConfig, acquireTimeout time.Duration) *Feed {
	return &Feed{
		factory:        factory,
		sourceType:     sourceType,
		config:         config,
		acquireTimeout: acquireTimeout,
	}
}

// SetDeviceSelector はUSBカメラのデバイス選択を設定する
// 設定しない場合は設定されたデバイスパスをそのまま使い、自動選択はできない
func (f *Feed) SetDeviceSelector(selector DeviceSelector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selector = selector
}

// Start はカメラを取得して映像フィードを開始する
// 既に有効、または取得中の場合は ErrFeedActive を返し、状態は変えない
// ctx のキャンセルまたは取得タイムアウトで取得を中断する
func (f *Feed) Start(ctx context.Context) (SourceInfo, error) {
	f.mu.Lock()
	if f.source != nil || f.starting {
		f.mu.Unlock()
		return SourceInfo{}, ErrFeedActive
	}

	var acqCtx context.Context
	var cancel context.CancelFunc
	if f.acquireTimeout > 0 {
		acqCtx, cancel = context.WithTimeout(ctx, f.acquireTimeout)
	} else {
		acqCtx, cancel = context.WithCancel(ctx)
	}
	f.starting = true
	f.cancelStart = cancel
	f.mu.Unlock()

	src, err := f.acquire(acqCtx)
	cancel()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.starting = false
	f.cancelStart = nil

	if err != nil {
		log.Printf("カメラの取得に失敗しました: %v", err)
		return SourceInfo{}, err
	}

	f.source = src
	f.muted = false
	f.paused = false
	f.frozen = nil
	f.startedAt = time.Now()

	info := src.GetInfo()
	log.Printf("カメラ映像を開始しました: %s (%s)", info.Name, info.Type)
	return info, nil
}

func (f *Feed) acquire(ctx context.Context) (Source, error) {
	config, err := f.sourceConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}

	src, err := f.factory.CreateSource(f.sourceType, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}

	if err := src.Start(ctx); err != nil {
		_ = src.Stop(context.Background())
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	return src, nil
}

// sourceConfig は取得するソースの設定を作る
// USBカメラの自動選択はここでデバイスを決める
func (f *Feed) sourceConfig(ctx context.Context) (SourceConfig, error) {
	config := f.config
	if f.sourceType != SourceTypeUSBCamera {
		return config, nil
	}

	f.mu.RLock()
	selector := f.selector
	f.mu.RUnlock()

	auto := IsAutoDevice(config.Device)
	if selector == nil {
		if auto {
			return config, ErrNoDevice
		}
		return config, nil
	}

	info, err := selector.SelectDevice(ctx, config.Device)
	if err != nil {
		if auto {
			return config, err
		}
		// 一覧に無くても開ける場合があるので、指定されたパスで続ける
		log.Printf("カメラデバイスの情報を取得できません: %v", err)
		return config, nil
	}

	if auto {
		log.Printf("カメラデバイスを自動選択しました: %s (%s)", info.Device, info.Name)
	}
	config.Device = info.Device
	config.Name = info.Name
	return config, nil
}

// Stop は映像フィードを停止してカメラを解放する
// 取得中の場合は取得を中断する
func (f *Feed) Stop(ctx context.Context) error {
	f.mu.Lock()
	if f.source == nil {
		defer f.mu.Unlock()
		if f.starting && f.cancelStart != nil {
			f.cancelStart()
			log.Println("カメラの取得を中断しました")
			return nil
		}
		return ErrNoFeed
	}

	src := f.source
	f.source = nil
	f.muted = false
	f.paused = false
	f.frozen = nil
	f.startedAt = time.Time{}
	f.mu.Unlock()

	if err := src.Stop(ctx); err != nil {
		return fmt.Errorf("カメラの停止に失敗: %w", err)
	}

	log.Println("カメラ映像を停止しました")
	return nil
}

// ToggleMute は映像トラックの有効/無効を切り替え、切り替え後にミュート中かを返す
// ミュート中のフレームは黒になる
func (f *Feed) ToggleMute() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.source == nil {
		return false, ErrNoFeed
	}

	f.muted = !f.muted
	return f.muted, nil
}

// TogglePause は映像の一時停止を切り替え、切り替え後に一時停止中かを返す
// 一時停止中は一時停止した時点のフレームを返し続ける
func (f *Feed) TogglePause() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.source == nil {
		return false, ErrNoFeed
	}

	f.paused = !f.paused
	if f.paused {
		frame, err := f.source.LatestFrame()
		if err != nil {
			log.Printf("一時停止時のフレームを取得できません: %v", err)
		}
		f.frozen = frame
	} else {
		f.frozen = nil
	}
	return f.paused, nil
}

// IsActive は映像フィードが有効かを返す
func (f *Feed) IsActive() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.source != nil
}

// Frame は表示中のフレームを返す
func (f *Feed) Frame() (image.Image, error) {
	f.mu.RLock()
	src := f.source
	muted := f.muted
	frozen := f.frozen
	paused := f.paused
	f.mu.RUnlock()

	if src == nil {
		return nil, ErrNoFeed
	}

	var frame image.Image
	if paused && frozen != nil {
		frame = frozen
	} else {
		var err error
		frame, err = src.LatestFrame()
		if err != nil {
			return nil, err
		}
	}

	if muted {
		black := image.NewRGBA(frame.Bounds())
		draw.Draw(black, black.Bounds(), image.Black, image.Point{}, draw.Src)
		return black, nil
	}
	return frame, nil
}

// State は現在の状態を返す
func (f *Feed) State() FeedState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state := FeedState{
		Active:   f.source != nil,
		Starting: f.starting,
		Muted:    f.muted,
		Paused:   f.paused,
		Status:   StatusInactive,
	}
	if f.source != nil {
		info := f.source.GetInfo()
		startedAt := f.startedAt
		state.Source = &info
		state.Status = f.source.GetStatus()
		state.StartedAt = &startedAt
	}
	return state
}
