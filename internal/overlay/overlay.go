// Package overlay はライブ映像の上に重ねるカウントダウン表示を管理する
package overlay

import (
	"log"
	"sync"
)

// Overlay はカウントダウン画像の表示状態
type Overlay struct {
	set *ImageSet

	mu      sync.RWMutex
	visible bool
	index   int
}

// New は新しいOverlayを作成する
func New(set *ImageSet) *Overlay {
	return &Overlay{set: set}
}

// Show は指定した番号の画像を表示する
// 範囲外の番号は画像セットの端に丸め、実際に表示した番号を返す
func (o *Overlay) Show(index int) int {
	clamped := index
	if clamped < 0 {
		clamped = 0
	}
	if last := o.set.Len() - 1; clamped > last {
		clamped = last
	}
	if clamped != index {
		log.Printf("カウントダウン画像の番号 %d は範囲外のため %d を表示します", index, clamped)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = true
	o.index = clamped
	return clamped
}

// Hide は表示を消す
func (o *Overlay) Hide() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = false
}

// Current は現在の表示状態を返す
func (o *Overlay) Current() (int, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.index, o.visible
}

// CurrentPNG は表示中の画像のPNGデータを返す
// 非表示の場合は false
func (o *Overlay) CurrentPNG() ([]byte, bool) {
	index, visible := o.Current()
	if !visible {
		return nil, false
	}
	return o.set.PNG(index)
}

// Images は画像セットを返す
func (o *Overlay) Images() *ImageSet {
	return o.set
}
