package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"photobooth/internal/photo"
	"photobooth/internal/sound"
)

// mockFeed はテスト用の映像フィード
type mockFeed struct {
	mu     sync.Mutex
	active bool
	frame  image.Image
	err    error
	frames int
}

func newMockFeed(active bool) *mockFeed {
	return &mockFeed{active: active, frame: image.NewRGBA(image.Rect(0, 0, 160, 90))}
}

func (f *mockFeed) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *mockFeed) Frame() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.frames++
	return f.frame, nil
}

func (f *mockFeed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// mockOverlay は表示・非表示を記録する
type mockOverlay struct {
	mu      sync.Mutex
	shown   []int
	hides   int
	visible bool
}

func (o *mockOverlay) Show(index int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shown = append(o.shown, index)
	o.visible = true
	return index
}

func (o *mockOverlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hides++
	o.visible = false
}

// mockPlayer は再生した効果音を記録する
type mockPlayer struct {
	mu   sync.Mutex
	cues []sound.Cue
}

func (p *mockPlayer) Play(cue sound.Cue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cues = append(p.cues, cue)
}

func (p *mockPlayer) played() []sound.Cue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sound.Cue(nil), p.cues...)
}

// eventRecorder は受け取ったイベントを記録する
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) count(eventType EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (r *eventRecorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []State
	for _, e := range r.events {
		if e.Type == EventStateChanged {
			states = append(states, e.State)
		}
	}
	return states
}

func fastTiming() Timing {
	return Timing{
		ShootTimer:       30 * time.Millisecond,
		StandbyDelay:     15 * time.Millisecond,
		ReminderInterval: 10 * time.Millisecond,
		PhotosCount:      3,
	}
}

type fixture struct {
	feed    *mockFeed
	overlay *mockOverlay
	player  *mockPlayer
	strip   *photo.Strip
	events  *eventRecorder
	manager *Manager
}

func newFixture(t *testing.T, timing Timing) *fixture {
	t.Helper()

	f := &fixture{
		feed:    newMockFeed(true),
		overlay: &mockOverlay{},
		player:  &mockPlayer{},
		strip:   photo.NewStrip(timing.PhotosCount, 400),
		events:  &eventRecorder{},
	}

	m, err := NewManager(f.feed, f.overlay, f.player, f.strip, timing)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Subscribe(f.events)
	f.manager = m
	return f
}

func waitSession(t *testing.T, m *Manager) Status {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := m.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	return status
}

func TestManager_RunsFullSession(t *testing.T) {
	timing := fastTiming()
	f := newFixture(t, timing)

	begin := time.Now()
	status, err := f.manager.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !status.Busy || status.SessionID == "" {
		t.Errorf("unexpected status after start: %+v", status)
	}

	status = waitSession(t, f.manager)
	elapsed := time.Since(begin)

	if status.State != StateDone {
		t.Fatalf("Expected done, got %s (%s)", status.State, status.Error)
	}
	if status.Busy {
		t.Error("finished session should not be busy")
	}
	if status.PhotosTaken != 3 {
		t.Errorf("Expected 3 photos, got %d", status.PhotosTaken)
	}
	if elapsed < timing.Duration() {
		t.Errorf("session finished too early: %s < %s", elapsed, timing.Duration())
	}

	if f.strip.Taken() != 3 {
		t.Errorf("Expected 3 canvases drawn, got %d", f.strip.Taken())
	}
	canvas, _ := f.strip.At(0)
	if w, h := canvas.Size(); w != 400 || h != 225 {
		t.Errorf("canvas should be adjusted to the feed ratio, got %dx%d", w, h)
	}

	wantCues := []sound.Cue{sound.CueReady, sound.CueShoot, sound.CueShoot, sound.CueShoot, sound.CueEnd}
	cues := f.player.played()
	if len(cues) != len(wantCues) {
		t.Fatalf("Expected cues %v, got %v", wantCues, cues)
	}
	for i := range wantCues {
		if cues[i] != wantCues[i] {
			t.Errorf("cue %d: got %v, want %v", i, cues[i], wantCues[i])
		}
	}

	wantShown := []int{2, 1, 0, 2, 1, 0, 2, 1, 0}
	f.overlay.mu.Lock()
	shown := f.overlay.shown
	hides := f.overlay.hides
	visible := f.overlay.visible
	f.overlay.mu.Unlock()
	if len(shown) != len(wantShown) {
		t.Fatalf("Expected overlays %v, got %v", wantShown, shown)
	}
	for i := range wantShown {
		if shown[i] != wantShown[i] {
			t.Errorf("overlay %d: got %d, want %d", i, shown[i], wantShown[i])
		}
	}
	if hides != 3 || visible {
		t.Errorf("Expected overlay hidden 3 times, got %d (visible=%v)", hides, visible)
	}

	if n := f.events.count(EventPhotoTaken); n != 3 {
		t.Errorf("Expected 3 photo_taken events, got %d", n)
	}
	if n := f.events.count(EventSessionFinished); n != 1 {
		t.Errorf("Expected 1 session_finished event, got %d", n)
	}

	wantStates := []State{
		StateReminding, StateStandby, StateCapturing,
		StateReminding, StateStandby, StateCapturing,
		StateReminding, StateStandby, StateCapturing,
		StateDone,
	}
	states := f.events.states()
	if len(states) != len(wantStates) {
		t.Fatalf("Expected states %v, got %v", wantStates, states)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Errorf("state %d: got %s, want %s", i, states[i], wantStates[i])
		}
	}
}

func TestManager_StartWithoutFeed(t *testing.T) {
	f := newFixture(t, fastTiming())
	f.feed.active = false

	if _, err := f.manager.Start(context.Background()); !errors.Is(err, ErrNoFeed) {
		t.Fatalf("Expected ErrNoFeed, got %v", err)
	}

	if f.manager.Busy() {
		t.Error("manager should not be busy")
	}
	if status := f.manager.Status(); status.State != StateIdle {
		t.Errorf("Expected idle, got %s", status.State)
	}
	if cues := f.player.played(); len(cues) != 0 {
		t.Errorf("no cue should play, got %v", cues)
	}
}

func TestManager_StartWhileActive(t *testing.T) {
	timing := fastTiming()
	timing.ShootTimer = time.Second
	f := newFixture(t, timing)

	first, err := f.manager.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := f.manager.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("Expected ErrSessionActive, got %v", err)
	}
	if status := f.manager.Status(); status.SessionID != first.SessionID {
		t.Error("second start must not replace the running session")
	}

	if _, err := f.manager.Abort(context.Background()); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
}

func TestManager_Abort(t *testing.T) {
	timing := fastTiming()
	timing.ShootTimer = 10 * time.Second
	f := newFixture(t, timing)

	if _, err := f.manager.Abort(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Expected ErrNoSession before start, got %v", err)
	}

	// リクエストのcontextが終わってもセッションは続く
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := f.manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()

	time.Sleep(30 * time.Millisecond)
	if !f.manager.Busy() {
		t.Fatal("session should survive the start request context")
	}

	status, err := f.manager.Abort(context.Background())
	if err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	if status.State != StateAborted {
		t.Errorf("Expected aborted, got %s", status.State)
	}
	if status.PhotosTaken != 0 {
		t.Errorf("Expected no photos, got %d", status.PhotosTaken)
	}
	if f.manager.Busy() {
		t.Error("manager should not be busy after abort")
	}
	if f.events.count(EventSessionAborted) != 1 {
		t.Error("Expected a session_aborted event")
	}

	f.overlay.mu.Lock()
	visible := f.overlay.visible
	f.overlay.mu.Unlock()
	if visible {
		t.Error("overlay should be hidden after abort")
	}

	// 中断後は新しいセッションを始められる
	if _, err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start after abort failed: %v", err)
	}
	if err := f.manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestManager_FeedLostDuringSession(t *testing.T) {
	f := newFixture(t, fastTiming())

	if _, err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.feed.fail(errors.New("device unplugged"))

	status := waitSession(t, f.manager)
	if status.State != StateFailed {
		t.Fatalf("Expected failed, got %s", status.State)
	}
	if status.Error == "" {
		t.Error("Expected failure reason in status")
	}
	if status.PhotosTaken != 0 {
		t.Errorf("Expected no photos, got %d", status.PhotosTaken)
	}
	if f.events.count(EventSessionFailed) != 1 {
		t.Error("Expected a session_failed event")
	}
}

func TestManager_UpdateTiming(t *testing.T) {
	f := newFixture(t, fastTiming())

	invalid := fastTiming()
	invalid.PhotosCount = 0
	if err := f.manager.UpdateTiming(invalid); !errors.Is(err, ErrInvalidTiming) {
		t.Fatalf("Expected ErrInvalidTiming, got %v", err)
	}
	if f.manager.Timing().PhotosCount != 3 {
		t.Error("invalid timing must not be applied")
	}

	next := fastTiming()
	next.PhotosCount = 2
	if err := f.manager.UpdateTiming(next); err != nil {
		t.Fatalf("UpdateTiming failed: %v", err)
	}

	if _, err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := waitSession(t, f.manager)

	if status.PhotosCount != 2 || status.PhotosTaken != 2 {
		t.Errorf("Expected 2 of 2 photos, got %d of %d", status.PhotosTaken, status.PhotosCount)
	}
	if f.strip.Len() != 2 {
		t.Errorf("strip should be resized to 2, got %d", f.strip.Len())
	}
}

func TestManager_Unsubscribe(t *testing.T) {
	f := newFixture(t, fastTiming())

	other := &eventRecorder{}
	unsubscribe := f.manager.Subscribe(other)
	unsubscribe()

	if _, err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitSession(t, f.manager)

	if n := other.count(EventSessionStarted); n != 0 {
		t.Errorf("unsubscribed observer received %d events", n)
	}
	if n := f.events.count(EventSessionStarted); n != 1 {
		t.Errorf("Expected 1 session_started event, got %d", n)
	}
}

func TestNewManager_InvalidTiming(t *testing.T) {
	_, err := NewManager(newMockFeed(true), &mockOverlay{}, nil, photo.NewStrip(1, 100), Timing{})
	if !errors.Is(err, ErrInvalidTiming) {
		t.Errorf("Expected ErrInvalidTiming, got %v", err)
	}
}
