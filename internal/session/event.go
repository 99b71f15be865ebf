package session

import (
	"sync"
	"time"
)

// EventType はセッションイベントの種類
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventStateChanged    EventType = "state_changed"
	EventOverlayShown    EventType = "overlay_shown"
	EventOverlayHidden   EventType = "overlay_hidden"
	EventPhotoTaken      EventType = "photo_taken"
	EventSessionFinished EventType = "session_finished"
	EventSessionAborted  EventType = "session_aborted"
	EventSessionFailed   EventType = "session_failed"
)

// Event はセッションの進行を外部に伝える
type Event struct {
	Type          EventType `json:"type"`
	SessionID     string    `json:"session_id"`
	State         State     `json:"state"`
	PreviousState State     `json:"previous_state,omitempty"`
	PhotosTaken   int       `json:"photos_taken"`
	PhotosCount   int       `json:"photos_count"`
	ReminderShown int       `json:"reminder_shown"`
	Frame         int       `json:"frame"`
	Index         int       `json:"index"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Observer はセッションイベントを受け取る
// OnEvent はセッションの実行goroutineから呼ばれるため、ブロックしてはいけない
type Observer interface {
	OnEvent(event Event)
}

// ObserverFunc は関数をObserverとして使うためのアダプタ
type ObserverFunc func(event Event)

// OnEvent はfを呼び出す
func (f ObserverFunc) OnEvent(event Event) {
	f(event)
}

// observers は購読者の一覧
type observers struct {
	mu     sync.RWMutex
	nextID int
	list   map[int]Observer
}

func (o *observers) add(observer Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.list == nil {
		o.list = make(map[int]Observer)
	}
	id := o.nextID
	o.nextID++
	o.list[id] = observer

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.list, id)
	}
}

func (o *observers) notify(event Event) {
	o.mu.RLock()
	list := make([]Observer, 0, len(o.list))
	for _, observer := range o.list {
		list = append(list, observer)
	}
	o.mu.RUnlock()

	for _, observer := range list {
		observer.OnEvent(event)
	}
}
