package server

import (
	"time"

	"photobooth/internal/camera"
	"photobooth/internal/session"
)

// ボタンの表示文言
const (
	LabelTake    = "Take!"
	LabelWorking = "Working ..."
	LabelMute    = "Mute"
	LabelUnmute  = "Unmute"
	LabelPause   = "Pause"
	LabelUnpause = "Unpause"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo はサーバー情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status    string          `json:"status"`
	Server    ServerInfo      `json:"server"`
	Feed      FeedResponse    `json:"feed"`
	Session   SessionResponse `json:"session"`
	Clients   int             `json:"clients"`
	Timestamp time.Time       `json:"timestamp"`
}

// DisplaySize は映像比率を保ったプレビュー表示サイズ
type DisplaySize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FeedResponse は映像フィードの状態
type FeedResponse struct {
	camera.FeedState
	MuteLabel  string       `json:"mute_label"`
	PauseLabel string       `json:"pause_label"`
	Display    *DisplaySize `json:"display,omitempty"`
}

// ToggleResponse はミュート・一時停止の切り替え結果
type ToggleResponse struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
}

// SessionResponse は撮影セッションの状態
type SessionResponse struct {
	session.Status
	ShootLabel string `json:"shoot_label"`
}

// PhotoInfo は撮影済み写真の情報
type PhotoInfo struct {
	Index   int        `json:"index"`
	Width   int        `json:"width"`
	Height  int        `json:"height"`
	Taken   bool       `json:"taken"`
	TakenAt *time.Time `json:"taken_at,omitempty"`
	URL     string     `json:"url,omitempty"`
}

// PhotosResponse は写真一覧のレスポンス
type PhotosResponse struct {
	Photos []PhotoInfo `json:"photos"`
}

// DevicesResponse はカメラデバイス一覧のレスポンス
type DevicesResponse struct {
	Devices []camera.DeviceInfo `json:"devices"`
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FeedMessage はWebSocketで送るフィード状態の変化
type FeedMessage struct {
	Type string       `json:"type"`
	Feed FeedResponse `json:"feed"`
}
