package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv は設定ファイルのパスを指定する環境変数名
const ConfigPathEnv = "PHOTOBOOTH_CONFIG"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Camera  CameraConfig  `yaml:"camera"`
	Session SessionConfig `yaml:"session"`
	Assets  AssetsConfig  `yaml:"assets"`
	Audio   AudioConfig   `yaml:"audio"`
	MQTT    MQTTConfig    `yaml:"mqtt"`

	// 読み込み元の設定ファイル（空の場合はデフォルト値のみ）
	Path string `yaml:"-"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`        // リッスンするホスト
	Port int    `yaml:"port" validate:"min=1,max=65535"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Source string `yaml:"source" validate:"oneof=usb_camera test_pattern"` // 映像ソースの種類
	Device string `yaml:"device"`                                          // デバイスパス (例: /dev/video0)、auto で自動選択

	FPS    int `yaml:"fps" validate:"min=1,max=60"`      // フレームレート (fps)
	Width  int `yaml:"width" validate:"min=1,max=4096"`  // 画像幅
	Height int `yaml:"height" validate:"min=1,max=4096"` // 画像高さ

	// カメラ取得のタイムアウト（権限ダイアログ待ちに相当）
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	// デバイスの再スキャン間隔（0で無効）
	ScanInterval time.Duration `yaml:"scan_interval"`

	// プレビュー表示枠（映像比率を保って収める）
	PreviewWidth  int `yaml:"preview_width" validate:"min=1"`
	PreviewHeight int `yaml:"preview_height" validate:"min=1"`
}

// SessionConfig は撮影セッションのタイミング設定
type SessionConfig struct {
	PhotosCount      int           `yaml:"photos_count" validate:"min=1,max=12"` // 1セッションの撮影枚数
	ShootTimer       time.Duration `yaml:"shoot_timer"`                          // 撮影前カウントダウンの長さ
	StandbyDelay     time.Duration `yaml:"standby_delay"`                        // 最後のリマインダーから撮影までの猶予
	ReminderInterval time.Duration `yaml:"reminder_interval"`                    // カウントダウン表示の間隔
	CanvasWidth      int           `yaml:"canvas_width" validate:"min=16,max=4096"`
	JPEGQuality      int           `yaml:"jpeg_quality" validate:"min=1,max=100"`

	// プリント用にまとめた画像のレイアウト
	StripColumns int `yaml:"strip_columns" validate:"min=1,max=12"`
	StripGap     int `yaml:"strip_gap" validate:"min=0,max=256"`
}

// AssetsConfig は画像・音声素材の設定
type AssetsConfig struct {
	OverlayDir   string `yaml:"overlay_dir"`   // カウントダウン画像ディレクトリ（空なら生成）
	OverlayCount int    `yaml:"overlay_count" validate:"min=1,max=60"`
	OverlaySize  int    `yaml:"overlay_size" validate:"min=16,max=2048"`
	SoundDir     string `yaml:"sound_dir"` // _ready.wav / _end.wav / _shoot.wav の置き場所
}

// AudioConfig は音声再生の設定
type AudioConfig struct {
	Enabled    bool `yaml:"enabled"`
	SampleRate int  `yaml:"sample_rate" validate:"min=8000,max=192000"`
}

// MQTTConfig はセッションイベント通知の設定
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker" validate:"required_if=Enabled true"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos" validate:"max=2"`
}

var validate = validator.New()

// Default はデフォルト設定を返す
// 撮影タイミングは元のフォトブースと同じ値（3秒 + 1.5秒、3枚）
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Source:         "usb_camera",
			Device:         "auto",
			FPS:            15,
			Width:          1280,
			Height:         720,
			AcquireTimeout: 15 * time.Second,
			ScanInterval:   30 * time.Second,
			PreviewWidth:   640,
			PreviewHeight:  480,
		},
		Session: SessionConfig{
			PhotosCount:      3,
			ShootTimer:       3000 * time.Millisecond,
			StandbyDelay:     1500 * time.Millisecond,
			ReminderInterval: 1000 * time.Millisecond,
			CanvasWidth:      400,
			JPEGQuality:      90,
			StripColumns:     1,
			StripGap:         10,
		},
		Assets: AssetsConfig{
			OverlayCount: 5,
			OverlaySize:  256,
		},
		Audio: AudioConfig{
			Enabled:    true,
			SampleRate: 44100,
		},
		MQTT: MQTTConfig{
			ClientID: "photobooth",
			Topic:    "photobooth/events",
			QoS:      1,
		},
	}
}

// Load は設定を読み込む
// デフォルト値 → 設定ファイル(PHOTOBOOTH_CONFIG) → .env → 環境変数 の順に上書きする
func Load() (*Config, error) {
	// .env は存在しなくてもよい
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf(".envの読み込みに失敗しました: %v", err)
	}

	return LoadFile(os.Getenv(ConfigPathEnv))
}

// LoadFile は指定されたYAMLファイルから設定を読み込む
// pathが空の場合はデフォルト値と環境変数のみを使う
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
		cfg.Path = path
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("SERVER_PORT", c.Server.Port)
	c.Camera.Source = getEnvOrDefault("CAMERA_SOURCE", c.Camera.Source)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.Session.PhotosCount = getEnvAsIntOrDefault("PHOTOS_COUNT", c.Session.PhotosCount)

	if value := strings.ToLower(os.Getenv("AUDIO_ENABLED")); value != "" {
		c.Audio.Enabled = value == "1" || value == "true"
	}
}

// Overrides はコマンドラインオプションによる上書き値
// ゼロ値の項目は上書きしない
type Overrides struct {
	Host   string
	Port   int
	Device string
	Demo   bool // テストパターンを使う
}

// ApplyOverrides は上書き値を反映し、設定を検証し直す
func (c *Config) ApplyOverrides(o Overrides) error {
	if o.Host != "" {
		c.Server.Host = o.Host
	}
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.Device != "" {
		c.Camera.Device = o.Device
	}
	if o.Demo {
		c.Camera.Source = "test_pattern"
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("コマンドラインオプションが不正です: %w", err)
	}
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("無効な設定値: %w", err)
	}

	return c.Session.Validate()
}

// Validate は撮影タイミングの妥当性を検証する
func (s SessionConfig) Validate() error {
	if s.ShootTimer <= 0 {
		return fmt.Errorf("無効な撮影タイマー: %s", s.ShootTimer)
	}
	if s.ReminderInterval <= 0 {
		return fmt.Errorf("無効なリマインダー間隔: %s", s.ReminderInterval)
	}
	if s.StandbyDelay < 0 {
		return fmt.Errorf("無効な待機時間: %s", s.StandbyDelay)
	}
	if s.PhotosCount < 1 {
		return fmt.Errorf("無効な撮影枚数: %d", s.PhotosCount)
	}
	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
