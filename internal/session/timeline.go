package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTiming はタイミング設定が不正であることを示す
var ErrInvalidTiming = errors.New("撮影タイミングの設定が不正です")

// Timing は1セッションの撮影タイミング
type Timing struct {
	ShootTimer       time.Duration // 撮影前カウントダウンの長さ (W)
	StandbyDelay     time.Duration // カウントダウン終了から撮影までの猶予
	ReminderInterval time.Duration // カウントダウン表示の間隔 (R)
	PhotosCount      int           // 撮影枚数 (N)
}

// DefaultTiming はデフォルトのタイミングを返す
func DefaultTiming() Timing {
	return Timing{
		ShootTimer:       3000 * time.Millisecond,
		StandbyDelay:     1500 * time.Millisecond,
		ReminderInterval: 1000 * time.Millisecond,
		PhotosCount:      3,
	}
}

// Validate はタイミング設定を検証する
func (t Timing) Validate() error {
	switch {
	case t.PhotosCount < 1:
		return fmt.Errorf("%w: 撮影枚数は1以上が必要です (%d)", ErrInvalidTiming, t.PhotosCount)
	case t.ShootTimer <= 0:
		return fmt.Errorf("%w: カウントダウンの長さは正の値が必要です (%s)", ErrInvalidTiming, t.ShootTimer)
	case t.ReminderInterval <= 0:
		return fmt.Errorf("%w: カウントダウン間隔は正の値が必要です (%s)", ErrInvalidTiming, t.ReminderInterval)
	case t.StandbyDelay < 0:
		return fmt.Errorf("%w: 撮影までの猶予は0以上が必要です (%s)", ErrInvalidTiming, t.StandbyDelay)
	}
	return nil
}

// Period は1枚あたりの撮影周期を返す
func (t Timing) Period() time.Duration {
	return t.ShootTimer + t.StandbyDelay
}

// Ticks は1回のカウントダウンで表示する回数 ceil(W/R) を返す
func (t Timing) Ticks() int {
	if t.ReminderInterval <= 0 {
		return 0
	}
	return int((t.ShootTimer + t.ReminderInterval - 1) / t.ReminderInterval)
}

// Duration はセッション全体の長さを返す
func (t Timing) Duration() time.Duration {
	return time.Duration(t.PhotosCount) * t.Period()
}

// StepKind はタイムライン上の処理の種類
type StepKind string

const (
	StepCycle     StepKind = "cycle"     // カウントダウン開始
	StepCountdown StepKind = "countdown" // カウントダウン画像の表示
	StepStandby   StepKind = "standby"   // カウントダウン画像を消して撮影を待つ
	StepShoot     StepKind = "shoot"     // 撮影
	StepFinish    StepKind = "finish"    // セッション終了
)

// Step はセッション開始からの相対時刻に実行する処理
type Step struct {
	At    time.Duration
	Kind  StepKind
	Frame int // 撮影する写真の番号（0始まり）
	Index int // カウントダウン画像の番号
	Tick  int // 何回目のカウントダウン表示か（1始まり）
}

// Timeline はセッションで実行する処理を時刻順に並べる
//
// 写真kごとに周期 P = W + 猶予 で次の処理を行う
//   - k·P: カウントダウン開始
//   - k·P + min(i·R, W): i回目のカウントダウン表示（i = 1..ceil(W/R)、画像番号 ceil(W/R)-i）
//   - k·P + W: カウントダウン画像を消す
//   - (k+1)·P: 撮影
//
// 最後の撮影と同時にセッションを終了する
func Timeline(t Timing) []Step {
	ticks := t.Ticks()
	period := t.Period()

	steps := make([]Step, 0, t.PhotosCount*(ticks+3)+1)
	for k := 0; k < t.PhotosCount; k++ {
		base := time.Duration(k) * period

		steps = append(steps, Step{At: base, Kind: StepCycle, Frame: k})

		for i := 1; i <= ticks; i++ {
			offset := time.Duration(i) * t.ReminderInterval
			if offset > t.ShootTimer {
				offset = t.ShootTimer
			}
			steps = append(steps, Step{
				At:    base + offset,
				Kind:  StepCountdown,
				Frame: k,
				Index: ticks - i,
				Tick:  i,
			})
		}

		steps = append(steps, Step{At: base + t.ShootTimer, Kind: StepStandby, Frame: k})
		steps = append(steps, Step{At: base + period, Kind: StepShoot, Frame: k})
	}

	steps = append(steps, Step{At: t.Duration(), Kind: StepFinish, Frame: t.PhotosCount - 1})
	return steps
}
