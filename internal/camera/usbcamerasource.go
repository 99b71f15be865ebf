package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"sync"
)

// USBCameraSource はUSBカメラの Source 実装
type USBCameraSource struct {
	baseSource

	capturer *V4L2Capturer

	// ストリームはStartのctxとは独立に、Stopまで動き続ける
	cancel context.CancelFunc
	wg     sync.WaitGroup

	frameChan chan []byte
	errorChan chan error

	// 最新フレームのJPEGデータ
	latestFrame []byte
	latestMutex sync.RWMutex
}

// NewUSBCameraSource は新しいUSBCameraSourceを作成する
func NewUSBCameraSource(info SourceInfo, settings Settings) *USBCameraSource {
	return &USBCameraSource{
		baseSource: baseSource{
			info:     info,
			settings: settings,
			status:   StatusInactive,
		},
		capturer: NewV4L2Capturer(info.Device, settings.Width, settings.Height, settings.FPS),
	}
}

// Start はカメラを開始する
// 最初のテストキャプチャが成功するまでをカメラの取得とみなす
func (s *USBCameraSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusActive {
		return nil // 既に開始済み
	}
	if s.cancel != nil {
		// エラーで止まった前回のストリームを片付ける
		s.cancel()
		s.cancel = nil
	}

	if err := s.capturer.TestCapture(ctx); err != nil {
		s.status = StatusError
		return fmt.Errorf("カメラのテストキャプチャに失敗: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.frameChan = make(chan []byte, 10)
	s.errorChan = make(chan error, 5)

	s.capturer.StartStream(streamCtx, s.frameChan, s.errorChan)

	s.wg.Add(1)
	go s.forwardFrames(streamCtx)

	s.status = StatusActive
	return nil
}

// Stop はカメラを停止する
func (s *USBCameraSource) Stop(_ context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		// forwardFrames が setStatus でロックを取るため、ロック外で待つ
		s.wg.Wait()
	}

	s.latestMutex.Lock()
	s.latestFrame = nil
	s.latestMutex.Unlock()

	s.setStatus(StatusInactive)
	return nil
}

// forwardFrames はキャプチャから届いたフレームを最新フレームとして保持する
func (s *USBCameraSource) forwardFrames(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-s.frameChan:
			s.latestMutex.Lock()
			s.latestFrame = frame
			s.latestMutex.Unlock()

		case err := <-s.errorChan:
			// 映像が途切れたら最新フレームを捨てて撮影できないようにする
			log.Printf("カメラ %s でエラーが発生: %v", s.info.Device, err)
			s.latestMutex.Lock()
			s.latestFrame = nil
			s.latestMutex.Unlock()
			s.setStatus(StatusError)
			return
		}
	}
}

// LatestFrame は最新フレームをデコードして返す
func (s *USBCameraSource) LatestFrame() (image.Image, error) {
	s.latestMutex.RLock()
	data := s.latestFrame
	s.latestMutex.RUnlock()

	if data == nil {
		return nil, ErrNoFrame
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}
	return img, nil
}
