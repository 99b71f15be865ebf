package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"photobooth/internal/camera"
	"photobooth/internal/config"
	"photobooth/internal/overlay"
	"photobooth/internal/photo"
	"photobooth/internal/session"
	"photobooth/internal/sound"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer はテストパターン映像と短いタイミングでサーバーを作成する
func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Camera.Source = string(camera.SourceTypeTestPattern)
	cfg.Camera.Width = 320
	cfg.Camera.Height = 240
	cfg.Camera.AcquireTimeout = time.Second
	cfg.Session.CanvasWidth = 100

	feed := camera.NewFeed(camera.NewSourceFactory(), camera.SourceTypeTestPattern, camera.SourceConfig{
		Settings: camera.Settings{FPS: cfg.Camera.FPS, Width: cfg.Camera.Width, Height: cfg.Camera.Height},
	}, cfg.Camera.AcquireTimeout)

	images, err := overlay.Generate(3, 32)
	if err != nil {
		t.Fatalf("overlay.Generate failed: %v", err)
	}
	ov := overlay.New(images)

	strip := photo.NewStrip(2, cfg.Session.CanvasWidth)
	sessions, err := session.NewManager(feed, ov, sound.NopPlayer{}, strip, session.Timing{
		ShootTimer:       30 * time.Millisecond,
		StandbyDelay:     15 * time.Millisecond,
		ReminderInterval: 10 * time.Millisecond,
		PhotosCount:      2,
	})
	if err != nil {
		t.Fatalf("session.NewManager failed: %v", err)
	}

	srv := New(cfg, Deps{
		Feed:     feed,
		Devices:  camera.NewDeviceMonitor(camera.NewMockDiscovery([]string{"/dev/video0", "/dev/video2"}), 0),
		Sessions: sessions,
		Overlay:  ov,
		Strip:    strip,
		Composer: photo.NewComposer(1, 10, 90),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sessions.Shutdown(ctx)
		_ = feed.Stop(ctx)
	})
	return srv
}

func doRequest(srv *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("レスポンスがJSONではありません: %v (%s)", err, w.Body.String())
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Expected status %d, got %d (%s)", status, w.Code, w.Body.String())
	}
	resp := decode[ErrorResponse](t, w)
	if resp.Error != code {
		t.Errorf("Expected error code %q, got %q", code, resp.Error)
	}
}

// TestServerEndpoints は基本的なエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	srv := newTestServer(t)

	testCases := []struct {
		name           string
		endpoint       string
		expectedStatus int
	}{
		{"ルートエンドポイント", "/", http.StatusOK},
		{"ヘルスチェックエンドポイント", "/health", http.StatusOK},
		{"ステータスエンドポイント", "/api/status", http.StatusOK},
		{"フィード状態", "/api/feed", http.StatusOK},
		{"セッション状態", "/api/session", http.StatusOK},
		{"写真一覧", "/api/photos", http.StatusOK},
		{"デバイス一覧", "/api/devices", http.StatusOK},
		{"デバイス再スキャン", "/api/devices?refresh=true", http.StatusOK},
		{"非表示のオーバーレイ", "/api/overlay", http.StatusNoContent},
		{"静的ファイル", "/static/app.js", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(srv, http.MethodGet, tc.endpoint)
			if w.Code != tc.expectedStatus {
				t.Errorf("期待されるステータスコード %d, 実際: %d", tc.expectedStatus, w.Code)
			}
		})
	}
}

func TestServer_InitialState(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(srv, http.MethodGet, "/api/status")
	status := decode[StatusResponse](t, w)

	if status.Feed.Active {
		t.Error("Feed should not be active initially")
	}
	if status.Feed.MuteLabel != LabelMute || status.Feed.PauseLabel != LabelPause {
		t.Errorf("unexpected labels: %q %q", status.Feed.MuteLabel, status.Feed.PauseLabel)
	}
	if status.Session.ShootLabel != LabelTake {
		t.Errorf("Expected shoot label %q, got %q", LabelTake, status.Session.ShootLabel)
	}
	if status.Session.State != session.StateIdle {
		t.Errorf("Expected idle, got %s", status.Session.State)
	}
}

func TestServer_ControlsRequireFeed(t *testing.T) {
	srv := newTestServer(t)

	testCases := []struct {
		name   string
		method string
		path   string
		status int
		code   string
	}{
		{"ミュート", http.MethodPost, "/api/feed/mute", http.StatusConflict, "feed_inactive"},
		{"一時停止", http.MethodPost, "/api/feed/pause", http.StatusConflict, "feed_inactive"},
		{"停止", http.MethodPost, "/api/feed/stop", http.StatusConflict, "feed_inactive"},
		{"撮影", http.MethodPost, "/api/session", http.StatusConflict, "feed_inactive"},
		{"ストリーム", http.MethodGet, "/api/feed/stream", http.StatusConflict, "feed_inactive"},
		{"中断", http.MethodDelete, "/api/session", http.StatusConflict, "no_session"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(srv, tc.method, tc.path)
			expectError(t, w, tc.status, tc.code)
		})
	}

	// 状態は変わらない
	status := decode[StatusResponse](t, doRequest(srv, http.MethodGet, "/api/status"))
	if status.Feed.Active || status.Feed.Muted || status.Feed.Paused {
		t.Errorf("feed state changed: %+v", status.Feed.FeedState)
	}
}

func TestServer_FeedLifecycle(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(srv, http.MethodPost, "/api/feed/start")
	if w.Code != http.StatusOK {
		t.Fatalf("start failed: %d %s", w.Code, w.Body.String())
	}
	feed := decode[FeedResponse](t, w)
	if !feed.Active {
		t.Fatal("Feed should be active after start")
	}
	if feed.Source == nil || feed.Source.Type != camera.SourceTypeTestPattern {
		t.Errorf("unexpected source: %+v", feed.Source)
	}
	// 320x240 を 640x480 の枠に収める
	if feed.Display == nil || feed.Display.Width != 640 || feed.Display.Height != 480 {
		t.Errorf("unexpected display size: %+v", feed.Display)
	}

	t.Run("二重開始", func(t *testing.T) {
		expectError(t, doRequest(srv, http.MethodPost, "/api/feed/start"), http.StatusConflict, "feed_active")
	})

	t.Run("ミュート切り替え", func(t *testing.T) {
		toggle := decode[ToggleResponse](t, doRequest(srv, http.MethodPost, "/api/feed/mute"))
		if !toggle.Enabled || toggle.Label != LabelUnmute {
			t.Errorf("unexpected mute toggle: %+v", toggle)
		}
		toggle = decode[ToggleResponse](t, doRequest(srv, http.MethodPost, "/api/feed/mute"))
		if toggle.Enabled || toggle.Label != LabelMute {
			t.Errorf("unexpected unmute toggle: %+v", toggle)
		}
	})

	t.Run("一時停止切り替え", func(t *testing.T) {
		toggle := decode[ToggleResponse](t, doRequest(srv, http.MethodPost, "/api/feed/pause"))
		if !toggle.Enabled || toggle.Label != LabelUnpause {
			t.Errorf("unexpected pause toggle: %+v", toggle)
		}
		state := decode[FeedResponse](t, doRequest(srv, http.MethodGet, "/api/feed"))
		if !state.Paused || state.PauseLabel != LabelUnpause {
			t.Errorf("unexpected feed state: %+v", state)
		}
	})

	w = doRequest(srv, http.MethodPost, "/api/feed/stop")
	if w.Code != http.StatusOK {
		t.Fatalf("stop failed: %d %s", w.Code, w.Body.String())
	}
	if decode[FeedResponse](t, w).Active {
		t.Error("Feed should be inactive after stop")
	}
}

func TestServer_SessionFlow(t *testing.T) {
	srv := newTestServer(t)

	if w := doRequest(srv, http.MethodPost, "/api/feed/start"); w.Code != http.StatusOK {
		t.Fatalf("start failed: %d %s", w.Code, w.Body.String())
	}

	// 撮影前の写真は取得できない
	expectError(t, doRequest(srv, http.MethodGet, "/api/photos/0"), http.StatusNotFound, "photo_not_found")
	expectError(t, doRequest(srv, http.MethodGet, "/api/strip"), http.StatusNotFound, "photo_not_found")

	w := doRequest(srv, http.MethodPost, "/api/session")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d (%s)", w.Code, w.Body.String())
	}
	started := decode[SessionResponse](t, w)
	if !started.Busy || started.ShootLabel != LabelWorking {
		t.Errorf("unexpected session response: %+v", started)
	}

	expectError(t, doRequest(srv, http.MethodPost, "/api/session"), http.StatusConflict, "session_active")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	final, err := srv.deps.Sessions.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if final.State != session.StateDone {
		t.Fatalf("Expected done, got %s (%s)", final.State, final.Error)
	}

	status := decode[SessionResponse](t, doRequest(srv, http.MethodGet, "/api/session"))
	if status.Busy || status.ShootLabel != LabelTake {
		t.Errorf("unexpected status after finish: %+v", status)
	}
	if status.PhotosTaken != 2 {
		t.Errorf("Expected 2 photos taken, got %d", status.PhotosTaken)
	}

	photos := decode[PhotosResponse](t, doRequest(srv, http.MethodGet, "/api/photos"))
	if len(photos.Photos) != 2 {
		t.Fatalf("Expected 2 photos, got %d", len(photos.Photos))
	}
	for _, p := range photos.Photos {
		if !p.Taken || p.URL == "" {
			t.Errorf("photo %d not taken: %+v", p.Index, p)
		}
		// 320x240 を幅100に縮小
		if p.Width != 100 || p.Height != 75 {
			t.Errorf("photo %d: unexpected size %dx%d", p.Index, p.Width, p.Height)
		}
	}

	w = doRequest(srv, http.MethodGet, "/api/photos/1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", ct)
	}

	w = doRequest(srv, http.MethodGet, "/api/strip")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for strip, got %d (%s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", ct)
	}

	expectError(t, doRequest(srv, http.MethodGet, "/api/photos/5"), http.StatusNotFound, "photo_not_found")
	expectError(t, doRequest(srv, http.MethodGet, "/api/photos/abc"), http.StatusNotFound, "photo_not_found")
}

func TestServer_AbortSession(t *testing.T) {
	srv := newTestServer(t)
	err := srv.deps.Sessions.UpdateTiming(session.Timing{
		ShootTimer:       time.Second,
		StandbyDelay:     time.Second,
		ReminderInterval: 500 * time.Millisecond,
		PhotosCount:      2,
	})
	if err != nil {
		t.Fatalf("UpdateTiming failed: %v", err)
	}

	if w := doRequest(srv, http.MethodPost, "/api/feed/start"); w.Code != http.StatusOK {
		t.Fatalf("start failed: %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(srv, http.MethodPost, "/api/session"); w.Code != http.StatusAccepted {
		t.Fatalf("session start failed: %d %s", w.Code, w.Body.String())
	}

	w := doRequest(srv, http.MethodDelete, "/api/session")
	if w.Code != http.StatusOK {
		t.Fatalf("abort failed: %d %s", w.Code, w.Body.String())
	}
	status := decode[SessionResponse](t, w)
	if status.State != session.StateAborted {
		t.Errorf("Expected aborted, got %s", status.State)
	}
	if status.Busy {
		t.Error("Session should not be busy after abort")
	}

	if w := doRequest(srv, http.MethodGet, "/api/overlay"); w.Code != http.StatusNoContent {
		t.Errorf("overlay should be hidden after abort, got %d", w.Code)
	}
}

func TestServer_Devices(t *testing.T) {
	srv := newTestServer(t)

	devices := decode[DevicesResponse](t, doRequest(srv, http.MethodGet, "/api/devices"))
	if len(devices.Devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices.Devices))
	}
	if devices.Devices[0].Device != "/dev/video0" {
		t.Errorf("unexpected device: %+v", devices.Devices[0])
	}
}

func TestServer_WebSocketEvents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket接続に失敗: %v", err)
	}
	defer conn.Close()

	// 登録されるまで待つ
	deadline := time.Now().Add(time.Second)
	for srv.hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/api/feed/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if msg["type"] != "feed_changed" {
		t.Fatalf("Expected feed_changed, got %v", msg["type"])
	}

	resp, err = http.Post(ts.URL+"/api/session", "application/json", nil)
	if err != nil {
		t.Fatalf("session request failed: %v", err)
	}
	resp.Body.Close()

	seen := map[string]bool{}
	for !seen[string(session.EventSessionFinished)] {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON failed: %v (seen %v)", err, seen)
		}
		seen[fmt.Sprint(msg["type"])] = true
	}

	for _, want := range []session.EventType{
		session.EventSessionStarted,
		session.EventOverlayShown,
		session.EventOverlayHidden,
		session.EventPhotoTaken,
	} {
		if !seen[string(want)] {
			t.Errorf("event %s was not delivered", want)
		}
	}
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	srv := newTestServer(t)
	srv.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}
