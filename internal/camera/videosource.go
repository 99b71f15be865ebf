package camera

import (
	"context"
	"image"
	"sync"
)

// SourceType はソースタイプを定義
type SourceType string

const (
	// SourceTypeUSBCamera はUSBカメラソースを表す
	SourceTypeUSBCamera SourceType = "usb_camera"
	// SourceTypeTestPattern は合成したテスト映像を表す
	SourceTypeTestPattern SourceType = "test_pattern"
)

// Source は映像フィードの供給元を統一するインターフェース
// 音声は扱わず、映像のみを取得する
type Source interface {
	// Start はカメラを取得して映像の取り込みを始める
	// ctx がキャンセルされた場合は取得を中断する
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// LatestFrame は最新のフレームを返す
	LatestFrame() (image.Image, error)

	GetInfo() SourceInfo
	GetStatus() Status
}

// SourceInfo はソース情報を表す
type SourceInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        SourceType `json:"type"`
	Driver      string     `json:"driver"`
	Description string     `json:"description"`
	Device      string     `json:"device,omitempty"` // デバイスパス（USBカメラ等）
	Width       int        `json:"width"`
	Height      int        `json:"height"`
}

// baseSource は共通実装を提供
type baseSource struct {
	info     SourceInfo
	settings Settings
	status   Status
	mu       sync.RWMutex
}

// GetInfo は基本情報を返す
func (b *baseSource) GetInfo() SourceInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

// GetStatus はステータスを返す
func (b *baseSource) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *baseSource) setStatus(status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}
