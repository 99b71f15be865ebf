package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"photobooth/internal/camera"
	"photobooth/internal/photo"
	"photobooth/internal/session"
)

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		Feed:      s.feedResponse(),
		Session:   s.sessionResponse(s.deps.Sessions.Status()),
		Clients:   s.hub.Count(),
		Timestamp: time.Now(),
	})
}

// handleDevices はカメラデバイス一覧エンドポイント
// ?refresh=true で再スキャンする
func (s *Server) handleDevices(c *gin.Context) {
	var (
		devices []camera.DeviceInfo
		err     error
	)
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		devices, err = s.deps.Devices.Refresh(c.Request.Context())
	} else {
		devices, err = s.deps.Devices.Devices(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DevicesResponse{Devices: devices})
}

// handleFeedState は映像フィードの状態を返す
func (s *Server) handleFeedState(c *gin.Context) {
	c.JSON(http.StatusOK, s.feedResponse())
}

// handleFeedStart はカメラを取得して映像フィードを開始する
// ブラウザが切断するとカメラの取得も中断される
func (s *Server) handleFeedStart(c *gin.Context) {
	if _, err := s.deps.Feed.Start(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	s.respondFeed(c)
}

// handleFeedStop は映像フィードを停止する
func (s *Server) handleFeedStop(c *gin.Context) {
	if err := s.deps.Feed.Stop(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	s.respondFeed(c)
}

// handleFeedMute はミュートを切り替える
func (s *Server) handleFeedMute(c *gin.Context) {
	muted, err := s.deps.Feed.ToggleMute()
	if err != nil {
		respondError(c, err)
		return
	}
	s.hub.Publish(FeedMessage{Type: "feed_changed", Feed: s.feedResponse()})
	c.JSON(http.StatusOK, ToggleResponse{Enabled: muted, Label: muteLabel(muted)})
}

// handleFeedPause は一時停止を切り替える
func (s *Server) handleFeedPause(c *gin.Context) {
	paused, err := s.deps.Feed.TogglePause()
	if err != nil {
		respondError(c, err)
		return
	}
	s.hub.Publish(FeedMessage{Type: "feed_changed", Feed: s.feedResponse()})
	c.JSON(http.StatusOK, ToggleResponse{Enabled: paused, Label: pauseLabel(paused)})
}

// handleSessionStatus は撮影セッションの状態を返す
func (s *Server) handleSessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessionResponse(s.deps.Sessions.Status()))
}

// handleSessionStart は撮影セッションを開始する
func (s *Server) handleSessionStart(c *gin.Context) {
	status, err := s.deps.Sessions.Start(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.sessionResponse(status))
}

// handleSessionAbort は撮影セッションを中断する
func (s *Server) handleSessionAbort(c *gin.Context) {
	status, err := s.deps.Sessions.Abort(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse(status))
}

// handlePhotos は写真の一覧を返す
func (s *Server) handlePhotos(c *gin.Context) {
	n := s.deps.Strip.Len()
	photos := make([]PhotoInfo, 0, n)

	for i := 0; i < n; i++ {
		canvas, err := s.deps.Strip.At(i)
		if err != nil {
			break // 撮影開始で枚数が変わった
		}

		w, h := canvas.Size()
		info := PhotoInfo{Index: i, Width: w, Height: h, Taken: !canvas.Empty()}
		if info.Taken {
			takenAt := canvas.TakenAt()
			info.TakenAt = &takenAt
			info.URL = fmt.Sprintf("/api/photos/%d?t=%d", i, takenAt.UnixMilli())
		}
		photos = append(photos, info)
	}

	c.JSON(http.StatusOK, PhotosResponse{Photos: photos})
}

// handlePhoto は撮影済みの写真をJPEGで返す
func (s *Server) handlePhoto(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		respondError(c, fmt.Errorf("%w: %s", photo.ErrNoCanvas, c.Param("index")))
		return
	}

	canvas, err := s.deps.Strip.At(index)
	if err != nil {
		respondError(c, err)
		return
	}
	if canvas.Empty() {
		respondError(c, fmt.Errorf("%w: %d はまだ撮影されていません", photo.ErrNoCanvas, index))
		return
	}

	data, err := canvas.JPEG(s.config.Session.JPEGQuality)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// handleStrip は撮影済みの写真を並べたプリント用画像を返す
func (s *Server) handleStrip(c *gin.Context) {
	data, err := s.deps.Composer.JPEG(s.deps.Strip)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Content-Disposition", `inline; filename="photobooth.jpg"`)
	c.Data(http.StatusOK, "image/jpeg", data)
}

// handleOverlay は表示中のカウントダウン画像を返す
// 非表示の場合は 204
func (s *Server) handleOverlay(c *gin.Context) {
	data, ok := s.deps.Overlay.CurrentPNG()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", data)
}

// handleFeedStream はMJPEGストリーミングを配信する
func (s *Server) handleFeedStream(c *gin.Context) {
	if !s.deps.Feed.IsActive() {
		respondError(c, camera.ErrNoFeed)
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	fps := s.config.Camera.FPS
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	var buf bytes.Buffer

	for {
		select {
		case <-clientGone:
			return

		case <-ticker.C:
			frame, err := s.deps.Feed.Frame()
			if errors.Is(err, camera.ErrNoFeed) {
				return
			}
			if err != nil {
				continue
			}

			buf.Reset()
			if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 75}); err != nil {
				continue
			}

			if _, err := fmt.Fprintf(writer, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len()); err != nil {
				return
			}
			if _, err := writer.Write(buf.Bytes()); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

// handleIndex は埋め込みのUIを返す
func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", getIndexHTML())
}

// ヘルパー関数

// respondFeed はフィード状態を返し、WebSocketにも通知する
func (s *Server) respondFeed(c *gin.Context) {
	response := s.feedResponse()
	s.hub.Publish(FeedMessage{Type: "feed_changed", Feed: response})
	c.JSON(http.StatusOK, response)
}

func (s *Server) feedResponse() FeedResponse {
	state := s.deps.Feed.State()
	response := FeedResponse{
		FeedState:  state,
		MuteLabel:  muteLabel(state.Muted),
		PauseLabel: pauseLabel(state.Paused),
	}

	if state.Source != nil {
		w, h := photo.FitDisplay(state.Source.Width, state.Source.Height,
			s.config.Camera.PreviewWidth, s.config.Camera.PreviewHeight)
		response.Display = &DisplaySize{Width: w, Height: h}
	}
	return response
}

func (s *Server) sessionResponse(status session.Status) SessionResponse {
	label := LabelTake
	if status.Busy {
		label = LabelWorking
	}
	return SessionResponse{Status: status, ShootLabel: label}
}

func muteLabel(muted bool) string {
	if muted {
		return LabelUnmute
	}
	return LabelMute
}

func pauseLabel(paused bool) string {
	if paused {
		return LabelUnpause
	}
	return LabelPause
}

// respondError はエラーを種類に応じたステータスコードで返す
func respondError(c *gin.Context, err error) {
	status, code, message := classifyError(err)
	details := err.Error()

	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Details:   &details,
		Timestamp: time.Now(),
	})
}

func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, camera.ErrFeedActive):
		return http.StatusConflict, "feed_active", "カメラ映像は既に開始されています"
	case errors.Is(err, camera.ErrAcquire):
		if errors.Is(err, context.Canceled) {
			return http.StatusConflict, "feed_acquire_cancelled", "カメラの取得が中断されました"
		}
		return http.StatusBadGateway, "feed_acquire_failed", "カメラを取得できませんでした"
	case errors.Is(err, camera.ErrNoFeed), errors.Is(err, session.ErrNoFeed):
		return http.StatusConflict, "feed_inactive", "カメラ映像が開始されていません"
	case errors.Is(err, session.ErrSessionActive):
		return http.StatusConflict, "session_active", "撮影中です"
	case errors.Is(err, session.ErrNoSession):
		return http.StatusConflict, "no_session", "撮影中のセッションはありません"
	case errors.Is(err, photo.ErrNoCanvas):
		return http.StatusNotFound, "photo_not_found", "指定された写真が見つかりません"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "処理がタイムアウトしました"
	default:
		return http.StatusInternalServerError, "internal_error", "内部エラーが発生しました"
	}
}
