package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"photobooth/internal/photo"
	"photobooth/internal/sound"
)

var (
	// ErrNoFeed は映像フィードがないため撮影を始められないことを示す
	ErrNoFeed = errors.New("カメラ映像が開始されていません")
	// ErrSessionActive は既に撮影中であることを示す
	ErrSessionActive = errors.New("撮影中です")
	// ErrNoSession は撮影中のセッションがないことを示す
	ErrNoSession = errors.New("撮影中のセッションはありません")
	// ErrFeedLost は撮影中に映像が途切れたことを示す
	ErrFeedLost = errors.New("撮影中にカメラ映像が途切れました")
)

// Feed は撮影に使う映像フィード
type Feed interface {
	IsActive() bool
	Frame() (image.Image, error)
}

// Overlay はカウントダウン画像の表示先
type Overlay interface {
	// Show は画像を表示し、実際に表示した番号を返す
	Show(index int) int
	Hide()
}

// Manager は撮影セッションを管理する
// 同時に実行できるセッションは1つだけ
type Manager struct {
	feed    Feed
	overlay Overlay
	player  sound.Player
	strip   *photo.Strip

	observers observers

	mu      sync.RWMutex
	timing  Timing
	current *Session
	last    *Session
}

// NewManager は新しいManagerを作成する
func NewManager(feed Feed, overlay Overlay, player sound.Player, strip *photo.Strip, timing Timing) (*Manager, error) {
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	if player == nil {
		player = sound.NopPlayer{}
	}

	return &Manager{
		feed:    feed,
		overlay: overlay,
		player:  player,
		strip:   strip,
		timing:  timing,
	}, nil
}

// Subscribe はイベントの購読を登録し、解除する関数を返す
func (m *Manager) Subscribe(observer Observer) func() {
	return m.observers.add(observer)
}

// Timing は次のセッションで使うタイミングを返す
func (m *Manager) Timing() Timing {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timing
}

// UpdateTiming は次のセッションから使うタイミングを更新する
// 実行中のセッションには影響しない
func (m *Manager) UpdateTiming(timing Timing) error {
	if err := timing.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.timing = timing
	log.Printf("撮影タイミングを更新しました: 枚数=%d カウントダウン=%s 猶予=%s 間隔=%s",
		timing.PhotosCount, timing.ShootTimer, timing.StandbyDelay, timing.ReminderInterval)
	return nil
}

// Start は撮影セッションを開始する
// 映像フィードがない場合は ErrNoFeed、撮影中の場合は ErrSessionActive を返し、状態は変えない
// セッションは ctx のキャンセルとは独立に進み、Abort で中断する
func (m *Manager) Start(ctx context.Context) (Status, error) {
	if !m.feed.IsActive() {
		return Status{}, ErrNoFeed
	}

	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return Status{}, ErrSessionActive
	}

	timing := m.timing
	s := newSession(timing, m.onStateChange)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	m.current = s
	m.mu.Unlock()

	m.player.Play(sound.CueReady)
	m.strip.Reset(timing.PhotosCount)

	log.Printf("撮影セッションを開始しました: %s (%d枚)", s.ID, timing.PhotosCount)
	m.observers.notify(s.event(EventSessionStarted))

	go m.run(runCtx, s)

	return s.Status(), nil
}

// Abort は撮影中のセッションを中断し、終了を待つ
func (m *Manager) Abort(ctx context.Context) (Status, error) {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()

	if s == nil {
		return Status{}, ErrNoSession
	}

	s.cancel()

	select {
	case <-s.done:
		return s.Status(), nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Wait は撮影中のセッションの終了を待つ
func (m *Manager) Wait(ctx context.Context) (Status, error) {
	m.mu.RLock()
	s := m.current
	if s == nil {
		s = m.last
	}
	m.mu.RUnlock()

	if s == nil {
		return Status{State: StateIdle}, nil
	}

	select {
	case <-s.done:
		return s.Status(), nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Status は現在のセッション、なければ直前のセッションの状態を返す
func (m *Manager) Status() Status {
	m.mu.RLock()
	s := m.current
	if s == nil {
		s = m.last
	}
	timing := m.timing
	m.mu.RUnlock()

	if s == nil {
		return Status{State: StateIdle, PhotosCount: timing.PhotosCount}
	}
	return s.Status()
}

// Busy は撮影中かを返す
func (m *Manager) Busy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// Shutdown は撮影中のセッションがあれば中断する
func (m *Manager) Shutdown(ctx context.Context) error {
	if _, err := m.Abort(ctx); err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	return nil
}

// run はタイムラインを1つのgoroutineで順に実行する
func (m *Manager) run(ctx context.Context, s *Session) {
	defer m.finish(s)

	start := time.Now()
	for _, step := range Timeline(s.timing) {
		if err := waitUntil(ctx, start.Add(step.At)); err != nil {
			m.terminate(s, eventAbort, EventSessionAborted, nil)
			return
		}

		if err := m.execute(s, step); err != nil {
			m.terminate(s, eventFail, EventSessionFailed, err)
			return
		}
	}
}

func (m *Manager) execute(s *Session, step Step) error {
	switch step.Kind {
	case StepCycle:
		s.mu.Lock()
		s.reminderShown = 0
		s.mu.Unlock()
		return s.fire(eventRemind)

	case StepCountdown:
		shown := m.overlay.Show(step.Index)
		s.mu.Lock()
		s.reminderShown++
		s.mu.Unlock()

		e := s.event(EventOverlayShown)
		e.Frame = step.Frame
		e.Index = shown
		m.observers.notify(e)
		return nil

	case StepStandby:
		m.overlay.Hide()
		e := s.event(EventOverlayHidden)
		e.Frame = step.Frame
		m.observers.notify(e)
		return s.fire(eventStandby)

	case StepShoot:
		if err := s.fire(eventCapture); err != nil {
			return err
		}
		return m.shoot(s, step.Frame)

	case StepFinish:
		m.player.Play(sound.CueEnd)
		return s.fire(eventFinish)
	}

	return fmt.Errorf("不明な処理: %s", step.Kind)
}

// shoot は現在のフレームを写真に写す
func (m *Manager) shoot(s *Session, frame int) error {
	m.player.Play(sound.CueShoot)

	if !m.feed.IsActive() {
		return ErrFeedLost
	}
	img, err := m.feed.Frame()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFeedLost, err)
	}

	s.mu.RLock()
	taken := s.photosTaken
	s.mu.RUnlock()

	canvas, err := m.strip.At(taken)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if err := canvas.Adjust(b.Dx(), b.Dy()); err != nil {
		return err
	}
	canvas.Draw(img)

	s.mu.Lock()
	s.photosTaken++
	s.mu.Unlock()

	e := s.event(EventPhotoTaken)
	e.Frame = frame
	m.observers.notify(e)
	return nil
}

// terminate は中断・失敗時の後片付けをする
func (m *Manager) terminate(s *Session, fsmEvent string, eventType EventType, cause error) {
	m.overlay.Hide()

	s.mu.Lock()
	s.err = cause
	s.mu.Unlock()

	if err := s.fire(fsmEvent); err != nil {
		log.Printf("セッション %s の状態遷移に失敗: %v", s.ID, err)
	}

	e := s.event(eventType)
	if cause != nil {
		e.Error = cause.Error()
		log.Printf("撮影セッションが失敗しました: %s: %v", s.ID, cause)
	} else {
		log.Printf("撮影セッションを中断しました: %s", s.ID)
	}
	m.observers.notify(e)
}

// finish はセッションを破棄する
func (m *Manager) finish(s *Session) {
	s.mu.Lock()
	s.endedAt = time.Now()
	s.mu.Unlock()
	s.cancel()

	if s.State() == StateDone {
		log.Printf("撮影セッションが完了しました: %s", s.ID)
		m.observers.notify(s.event(EventSessionFinished))
	}

	m.mu.Lock()
	m.current = nil
	m.last = s
	m.mu.Unlock()

	close(s.done)
}

func (m *Manager) onStateChange(s *Session, from, to State) {
	e := s.event(EventStateChanged)
	e.PreviousState = from
	e.State = to
	m.observers.notify(e)
}

// waitUntil は指定時刻まで待つ。ctx がキャンセルされたらエラーを返す
func waitUntil(ctx context.Context, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
