package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Status はセッションの状態のスナップショット
type Status struct {
	SessionID     string     `json:"session_id,omitempty"`
	State         State      `json:"state"`
	Busy          bool       `json:"busy"`
	PhotosTaken   int        `json:"photos_taken"`
	PhotosCount   int        `json:"photos_count"`
	ReminderShown int        `json:"reminder_shown"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Session は1回の撮影セッション
// 開始時に作成され、完了・中断で破棄される
type Session struct {
	ID     string
	timing Timing

	machine *fsm.FSM

	mu            sync.RWMutex
	photosTaken   int
	reminderShown int
	startedAt     time.Time
	endedAt       time.Time
	err           error

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(timing Timing, onChange func(s *Session, from, to State)) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		timing:    timing,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.machine = newMachine(func(from, to State) {
		if onChange != nil {
			onChange(s, from, to)
		}
	})
	return s
}

// State は現在の状態を返す
func (s *Session) State() State {
	return State(s.machine.Current())
}

// Done はセッション終了時に閉じられるチャンネルを返す
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Status はスナップショットを返す
func (s *Session) Status() Status {
	state := s.State()

	s.mu.RLock()
	defer s.mu.RUnlock()

	startedAt := s.startedAt
	status := Status{
		SessionID:     s.ID,
		State:         state,
		Busy:          s.endedAt.IsZero(),
		PhotosTaken:   s.photosTaken,
		PhotosCount:   s.timing.PhotosCount,
		ReminderShown: s.reminderShown,
		StartedAt:     &startedAt,
	}
	if !s.endedAt.IsZero() {
		endedAt := s.endedAt
		status.EndedAt = &endedAt
	}
	if s.err != nil {
		status.Error = s.err.Error()
	}
	return status
}

// event はセッションの現在値を詰めたイベントを作る
func (s *Session) event(eventType EventType) Event {
	state := s.State()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Event{
		Type:          eventType,
		SessionID:     s.ID,
		State:         state,
		PhotosTaken:   s.photosTaken,
		PhotosCount:   s.timing.PhotosCount,
		ReminderShown: s.reminderShown,
		Timestamp:     time.Now(),
	}
}

func (s *Session) fire(event string) error {
	return s.machine.Event(context.Background(), event)
}
