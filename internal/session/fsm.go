package session

import (
	"context"

	"github.com/looplab/fsm"
)

// State はセッションの状態
type State string

const (
	StateIdle      State = "idle"      // 撮影していない
	StateReminding State = "reminding" // カウントダウン表示中
	StateStandby   State = "standby"   // カウントダウン終了、撮影待ち
	StateCapturing State = "capturing" // 撮影直後
	StateDone      State = "done"      // 全ての写真を撮り終えた
	StateAborted   State = "aborted"   // 中断された
	StateFailed    State = "failed"    // 映像が途切れて撮影できなかった
)

// Active は撮影中の状態かを返す
func (s State) Active() bool {
	switch s {
	case StateReminding, StateStandby, StateCapturing:
		return true
	}
	return false
}

const (
	eventRemind  = "remind"
	eventStandby = "standby"
	eventCapture = "capture"
	eventFinish  = "finish"
	eventAbort   = "abort"
	eventFail    = "fail"
)

// newMachine はセッションの状態機械を作成する
// カウントダウンと撮影はこの遷移の順でしか進まない
//
//	idle → reminding → standby → capturing → reminding … → done
//	撮影中はどこからでも aborted / failed に遷移できる
func newMachine(onChange func(from, to State)) *fsm.FSM {
	active := []string{string(StateIdle), string(StateReminding), string(StateStandby), string(StateCapturing)}

	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventRemind, Src: []string{string(StateIdle), string(StateCapturing)}, Dst: string(StateReminding)},
			{Name: eventStandby, Src: []string{string(StateReminding)}, Dst: string(StateStandby)},
			{Name: eventCapture, Src: []string{string(StateStandby)}, Dst: string(StateCapturing)},
			{Name: eventFinish, Src: []string{string(StateCapturing)}, Dst: string(StateDone)},
			{Name: eventAbort, Src: active, Dst: string(StateAborted)},
			{Name: eventFail, Src: active, Dst: string(StateFailed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if onChange != nil {
					onChange(State(e.Src), State(e.Dst))
				}
			},
		},
	)
}
