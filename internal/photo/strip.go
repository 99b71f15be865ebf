package photo

import (
	"fmt"
	"sync"
)

// Strip は1セッション分の撮影先キャンバスを固定順で保持する
type Strip struct {
	mu       sync.RWMutex
	width    int
	canvases []*Canvas
}

// NewStrip はn枚のキャンバスを持つStripを作成する
func NewStrip(n, width int) *Strip {
	s := &Strip{width: width}
	s.Reset(n)
	return s
}

// Reset はキャンバスをn枚の空の状態に作り直す
func (s *Strip) Reset(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canvases = make([]*Canvas, n)
	for i := range s.canvases {
		s.canvases[i] = NewCanvas(s.width)
	}
}

// At はi番目のキャンバスを返す
func (s *Strip) At(i int) (*Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.canvases) {
		return nil, fmt.Errorf("%w: %d", ErrNoCanvas, i)
	}
	return s.canvases[i], nil
}

// Len はキャンバスの枚数を返す
func (s *Strip) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.canvases)
}

// Taken は撮影済みのキャンバス数を返す
func (s *Strip) Taken() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.canvases {
		if !c.Empty() {
			n++
		}
	}
	return n
}
