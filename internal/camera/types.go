package camera

import (
	"context"
	"errors"
)

var (
	// ErrNoFeed は映像フィードが開始されていないことを示す
	ErrNoFeed = errors.New("カメラ映像が開始されていません")
	// ErrFeedActive は映像フィードが既に開始済み、または開始処理中であることを示す
	ErrFeedActive = errors.New("カメラ映像は既に開始されています")
	// ErrAcquire はカメラの取得に失敗したことを示す
	ErrAcquire = errors.New("カメラを取得できません")
	// ErrNoFrame はまだフレームが届いていないことを示す
	ErrNoFrame = errors.New("フレームがまだ取得されていません")
)

// Status はカメラの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // カメラは停止中
	StatusActive   Status = "active"   // カメラは動作中
	StatusError    Status = "error"    // カメラでエラーが発生
)

// Settings はカメラの設定を表す
type Settings struct {
	FPS    int // フレームレート
	Width  int // 画像幅
	Height int // 画像高さ
}

// Discovery はカメラデバイスを列挙する
type Discovery interface {
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの情報を表す
type DeviceInfo struct {
	Device  string   `json:"device"`        // デバイスパス
	Name    string   `json:"name"`          // カード名
	Driver  string   `json:"driver"`        // ドライバー名
	Bus     string   `json:"bus,omitempty"` // 接続先（同じ物理カメラの判定に使う）
	Formats []string `json:"formats"`       // ピクセルフォーマット
	Color   bool     `json:"color"`         // カラー映像を出せる
	Main    bool     `json:"main"`          // 物理カメラごとの代表ノード
}
