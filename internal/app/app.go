// Package app は設定からフォトブースの各コンポーネントを組み立てて起動する
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"photobooth/internal/camera"
	"photobooth/internal/config"
	"photobooth/internal/notify"
	"photobooth/internal/overlay"
	"photobooth/internal/photo"
	"photobooth/internal/server"
	"photobooth/internal/session"
	"photobooth/internal/sound"
)

// App は組み立て済みのアプリケーション
type App struct {
	config   *config.Config
	devices  *camera.DeviceMonitor
	sessions *session.Manager
	server   *server.Server
}

// New は設定から各コンポーネントを作成する
func New(cfg *config.Config) (*App, error) {
	factory := camera.NewSourceFactory()
	sourceType := camera.SourceType(cfg.Camera.Source)

	feed := camera.NewFeed(factory, sourceType, camera.SourceConfig{
		Device: cfg.Camera.Device,
		Settings: camera.Settings{
			FPS:    cfg.Camera.FPS,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
		},
	}, cfg.Camera.AcquireTimeout)

	devices := camera.NewDeviceMonitor(camera.NewV4L2Discovery(), cfg.Camera.ScanInterval)
	feed.SetDeviceSelector(devices)

	images, err := loadOverlays(cfg.Assets)
	if err != nil {
		return nil, err
	}
	ov := overlay.New(images)

	player := sound.New(cfg.Audio.Enabled, cfg.Assets.SoundDir, cfg.Audio.SampleRate)
	strip := photo.NewStrip(cfg.Session.PhotosCount, cfg.Session.CanvasWidth)

	sessions, err := session.NewManager(feed, ov, player, strip, TimingFrom(cfg.Session))
	if err != nil {
		return nil, fmt.Errorf("撮影セッションの作成に失敗: %w", err)
	}

	srv := server.New(cfg, server.Deps{
		Feed:     feed,
		Devices:  devices,
		Sessions: sessions,
		Overlay:  ov,
		Strip:    strip,
		Composer: photo.NewComposer(cfg.Session.StripColumns, cfg.Session.StripGap, cfg.Session.JPEGQuality),
	})

	return &App{
		config:   cfg,
		devices:  devices,
		sessions: sessions,
		server:   srv,
	}, nil
}

// Run はサーバーを起動し、終了するまで待つ
// 設定ファイルの監視とMQTT通知は有効な場合のみ開始する
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.config.Path != "" {
		watcher, err := config.NewWatcher(a.config, a.reload)
		if err != nil {
			log.Printf("設定ファイルを監視できません: %v", err)
		} else {
			watcher.Start(ctx)
			defer watcher.Close()
		}
	}

	if a.config.MQTT.Enabled {
		publisher, err := notify.Connect(ctx, a.config.MQTT)
		if err != nil {
			log.Printf("MQTT通知を無効にします: %v", err)
		} else {
			defer publisher.Close()

			emitter := notify.NewEmitter(publisher, a.config.MQTT.Topic, a.config.MQTT.QoS)
			go emitter.Run(ctx)
			defer a.sessions.Subscribe(emitter)()
		}
	}

	if err := a.devices.Start(ctx); err != nil {
		log.Printf("カメラデバイスのスキャンに失敗: %v", err)
	}
	defer a.devices.Stop()

	if a.config.Camera.Source == string(camera.SourceTypeUSBCamera) {
		a.checkDevice(ctx)
	}

	return a.server.Start(ctx)
}

// checkDevice は起動時に使うことになるカメラをログに出す
// 見つからなくても起動は続け、映像開始時に改めて選ぶ
func (a *App) checkDevice(ctx context.Context) {
	info, err := a.devices.SelectDevice(ctx, a.config.Camera.Device)
	if err != nil {
		log.Printf("警告: %v", err)
		return
	}
	log.Printf("使用するカメラ: %s (%s)", info.Device, info.Name)
}

// reload は再読み込みした設定のうち撮影タイミングを反映する
func (a *App) reload(cfg *config.Config) {
	if err := a.sessions.UpdateTiming(TimingFrom(cfg.Session)); err != nil {
		log.Printf("撮影タイミングを更新できません: %v", err)
	}
}

// TimingFrom は設定から撮影タイミングを作る
func TimingFrom(cfg config.SessionConfig) session.Timing {
	return session.Timing{
		ShootTimer:       cfg.ShootTimer,
		StandbyDelay:     cfg.StandbyDelay,
		ReminderInterval: cfg.ReminderInterval,
		PhotosCount:      cfg.PhotosCount,
	}
}

// loadOverlays はカウントダウン画像を読み込む
// ディレクトリが指定されていない、または空の場合は数字画像を生成する
func loadOverlays(cfg config.AssetsConfig) (*overlay.ImageSet, error) {
	if cfg.OverlayDir != "" {
		images, err := overlay.LoadDir(cfg.OverlayDir)
		if err == nil {
			log.Printf("カウントダウン画像を読み込みました: %s (%d枚)", cfg.OverlayDir, images.Len())
			return images, nil
		}
		if !errors.Is(err, overlay.ErrNoImages) {
			return nil, fmt.Errorf("カウントダウン画像の読み込みに失敗: %w", err)
		}
		log.Printf("%s に画像がないため生成します", cfg.OverlayDir)
	}

	return overlay.Generate(cfg.OverlayCount, cfg.OverlaySize)
}
