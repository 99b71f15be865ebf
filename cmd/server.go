// Package main はフォトブースサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"photobooth/internal/app"
	"photobooth/internal/config"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configPath = flag.String("config", "", "設定ファイルのパス (環境変数 "+config.ConfigPathEnv+" より優先)")
		device     = flag.String("device", "", "カメラデバイス (例: /dev/video0, auto)")
		demo       = flag.Bool("demo", false, "カメラの代わりにテストパターンを使う")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Photobooth")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *configPath != "" {
		if err := os.Setenv(config.ConfigPathEnv, *configPath); err != nil {
			log.Fatalf("設定ファイルの指定に失敗しました: %v", err)
		}
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if err := cfg.ApplyOverrides(config.Overrides{
		Host:   *host,
		Port:   *port,
		Device: *device,
		Demo:   *demo,
	}); err != nil {
		log.Fatalf("%v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("初期化に失敗しました: %v", err)
	}

	// サーバーを起動
	log.Printf("Photobooth サーバーを起動します: %s", cfg.ServerAddress())
	if err := a.Run(context.Background()); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
