package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"photobooth/internal/camera"
	"photobooth/internal/config"
	"photobooth/internal/overlay"
	"photobooth/internal/photo"
	"photobooth/internal/session"
)

// Deps はサーバーが操作するコンポーネント
type Deps struct {
	Feed     *camera.Feed
	Devices  *camera.DeviceMonitor
	Sessions *session.Manager
	Overlay  *overlay.Overlay
	Strip    *photo.Strip
	Composer *photo.Composer
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	deps       Deps
	hub        *Hub
	engine     *gin.Engine
	httpServer *http.Server

	unsubscribe func()
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Deps) *Server {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		config: cfg,
		deps:   deps,
		hub:    NewHub(),
		engine: engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	s.unsubscribe = deps.Sessions.Subscribe(s.hub)
	s.setupRoutes()
	return s
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/devices", s.handleDevices)

		feed := api.Group("/feed")
		feed.GET("", s.handleFeedState)
		feed.POST("/start", s.handleFeedStart)
		feed.POST("/stop", s.handleFeedStop)
		feed.POST("/mute", s.handleFeedMute)
		feed.POST("/pause", s.handleFeedPause)
		feed.GET("/stream", s.handleFeedStream)

		api.GET("/session", s.handleSessionStatus)
		api.POST("/session", s.handleSessionStart)
		api.DELETE("/session", s.handleSessionAbort)

		api.GET("/photos", s.handlePhotos)
		api.GET("/photos/:index", s.handlePhoto)
		api.GET("/strip", s.handleStrip)
		api.GET("/overlay", s.handleOverlay)
	}

	s.engine.GET("/ws", s.hub.ServeWS)

	s.engine.StaticFS("/static", GetStaticFS())
	s.engine.GET("/", s.handleIndex)
}

// Start はサーバーを起動し、ctxの終了かシグナルを受けるまで待つ
func (s *Server) Start(ctx context.Context) error {
	shutdownCh := make(chan error, 1)

	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 撮影中のセッションは中断し、カメラを解放する
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.deps.Sessions.Shutdown(ctx); err != nil {
		log.Printf("撮影セッションの中断に失敗: %v", err)
	}
	if err := s.deps.Feed.Stop(ctx); err != nil && !errors.Is(err, camera.ErrNoFeed) {
		log.Printf("カメラの停止に失敗: %v", err)
	}

	s.unsubscribe()
	s.hub.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
