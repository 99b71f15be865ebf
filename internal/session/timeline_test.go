package session

import (
	"errors"
	"testing"
	"time"
)

func countKind(steps []Step, kind StepKind) int {
	n := 0
	for _, step := range steps {
		if step.Kind == kind {
			n++
		}
	}
	return n
}

func TestTimeline_DefaultScenario(t *testing.T) {
	timing := DefaultTiming()
	steps := Timeline(timing)

	var shoots []time.Duration
	for _, step := range steps {
		if step.Kind == StepShoot {
			shoots = append(shoots, step.At)
		}
	}

	want := []time.Duration{4500 * time.Millisecond, 9000 * time.Millisecond, 13500 * time.Millisecond}
	if len(shoots) != len(want) {
		t.Fatalf("Expected %d shoots, got %d", len(want), len(shoots))
	}
	for i := range want {
		if shoots[i] != want[i] {
			t.Errorf("shoot %d: got %s, want %s", i, shoots[i], want[i])
		}
	}

	last := steps[len(steps)-1]
	if last.Kind != StepFinish || last.At != 13500*time.Millisecond {
		t.Errorf("Expected finish at 13.5s, got %s at %s", last.Kind, last.At)
	}
	if timing.Duration() != 13500*time.Millisecond {
		t.Errorf("Expected duration 13.5s, got %s", timing.Duration())
	}
}

func TestTimeline_CountdownIndexes(t *testing.T) {
	steps := Timeline(DefaultTiming())

	type shown struct {
		at    time.Duration
		index int
	}
	var first []shown
	for _, step := range steps {
		if step.Kind == StepCountdown && step.Frame == 0 {
			first = append(first, shown{step.At, step.Index})
		}
	}

	want := []shown{
		{1000 * time.Millisecond, 2},
		{2000 * time.Millisecond, 1},
		{3000 * time.Millisecond, 0},
	}
	if len(first) != len(want) {
		t.Fatalf("Expected %d countdown steps, got %d", len(want), len(first))
	}
	for i := range want {
		if first[i] != want[i] {
			t.Errorf("countdown %d: got %+v, want %+v", i, first[i], want[i])
		}
	}
}

func TestTimeline_ReminderTicks(t *testing.T) {
	testCases := []struct {
		name      string
		window    time.Duration
		wantTicks int
	}{
		{"3秒", 3000 * time.Millisecond, 3},
		{"2.5秒", 2500 * time.Millisecond, 3},
		{"1秒", 1000 * time.Millisecond, 1},
		{"0.5秒", 500 * time.Millisecond, 1},
		{"4.2秒", 4200 * time.Millisecond, 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			timing := Timing{
				ShootTimer:       tc.window,
				StandbyDelay:     1500 * time.Millisecond,
				ReminderInterval: 1000 * time.Millisecond,
				PhotosCount:      1,
			}
			steps := Timeline(timing)

			if got := countKind(steps, StepCountdown); got != tc.wantTicks {
				t.Errorf("ticks: got %d, want %d", got, tc.wantTicks)
			}

			for _, step := range steps {
				switch step.Kind {
				case StepCountdown:
					if step.At > tc.window {
						t.Errorf("tick %d at %s is after the window %s", step.Tick, step.At, tc.window)
					}
					if step.Index < 0 || step.Index >= tc.wantTicks {
						t.Errorf("tick %d has index %d out of [0,%d)", step.Tick, step.Index, tc.wantTicks)
					}
				case StepStandby:
					if step.At != tc.window {
						t.Errorf("overlay hidden at %s, want %s", step.At, tc.window)
					}
				}
			}
		})
	}
}

func TestTimeline_EachShootFollowsOneCycle(t *testing.T) {
	testCases := []Timing{
		DefaultTiming(),
		// 猶予なしでもカウントダウンの非表示が撮影より先
		{ShootTimer: 3000 * time.Millisecond, StandbyDelay: 0, ReminderInterval: 1000 * time.Millisecond, PhotosCount: 4},
		// 間隔がカウントダウンより長い
		{ShootTimer: 500 * time.Millisecond, StandbyDelay: 100 * time.Millisecond, ReminderInterval: 2000 * time.Millisecond, PhotosCount: 2},
	}

	for _, timing := range testCases {
		steps := Timeline(timing)

		if got := countKind(steps, StepShoot); got != timing.PhotosCount {
			t.Errorf("shoots: got %d, want %d", got, timing.PhotosCount)
		}
		if got := countKind(steps, StepCycle); got != timing.PhotosCount {
			t.Errorf("cycles: got %d, want %d", got, timing.PhotosCount)
		}

		// 直前の撮影から次の撮影まで、開始・非表示がちょうど1回ずつ
		cycles, hides, frame := 0, 0, 0
		var prev time.Duration
		for _, step := range steps {
			if step.At < prev {
				t.Fatalf("steps are not ordered: %s after %s", step.At, prev)
			}
			prev = step.At

			switch step.Kind {
			case StepCycle:
				cycles++
			case StepStandby:
				hides++
			case StepShoot:
				if cycles != 1 || hides != 1 {
					t.Errorf("shoot %d preceded by %d cycles and %d hides", frame, cycles, hides)
				}
				if step.Frame != frame {
					t.Errorf("shoot frame: got %d, want %d", step.Frame, frame)
				}
				cycles, hides = 0, 0
				frame++
			}
		}
	}
}

func TestTiming_Validate(t *testing.T) {
	valid := DefaultTiming()

	testCases := []struct {
		name   string
		modify func(*Timing)
		valid  bool
	}{
		{"デフォルト", func(*Timing) {}, true},
		{"猶予なし", func(t *Timing) { t.StandbyDelay = 0 }, true},
		{"撮影枚数0", func(t *Timing) { t.PhotosCount = 0 }, false},
		{"カウントダウンなし", func(t *Timing) { t.ShootTimer = 0 }, false},
		{"間隔0", func(t *Timing) { t.ReminderInterval = 0 }, false},
		{"負の猶予", func(t *Timing) { t.StandbyDelay = -time.Second }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			timing := valid
			tc.modify(&timing)

			err := timing.Validate()
			if tc.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidTiming) {
				t.Errorf("Expected ErrInvalidTiming, got %v", err)
			}
		})
	}
}
