package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// ErrNoCanvas は指定された番号のキャンバスが存在しないことを示す
var ErrNoCanvas = errors.New("キャンバスがありません")

// MaxCanvasHeight はキャンバスの高さの上限(px)
const MaxCanvasHeight = 4096

// Canvas は撮影した1枚を保持する描画先
// 幅は固定で、高さは映像の縦横比に合わせて調整される
type Canvas struct {
	mu      sync.RWMutex
	width   int
	img     *image.RGBA
	empty   bool
	takenAt time.Time
}

// NewCanvas は指定幅の空のキャンバスを作成する
func NewCanvas(width int) *Canvas {
	return &Canvas{
		width: width,
		img:   image.NewRGBA(image.Rect(0, 0, width, width)),
		empty: true,
	}
}

// Adjust はキャンバスの高さを映像の縦横比に合わせる
// 高さは 1〜MaxCanvasHeight に収め、極端な縦横比の映像は余白を付けて描く
// サイズが変わると描画内容は破棄される
func (c *Canvas) Adjust(srcW, srcH int) error {
	if srcW <= 0 || srcH <= 0 {
		return fmt.Errorf("無効な映像サイズ: %dx%d", srcW, srcH)
	}

	height := min(max(AdjustedHeight(c.width, srcW, srcH), 1), MaxCanvasHeight)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.img.Bounds().Dy() != height {
		c.img = image.NewRGBA(image.Rect(0, 0, c.width, height))
		c.empty = true
	}
	return nil
}

// Draw は映像フレームを1枚コピーする
func (c *Canvas) Draw(src image.Image) Placement {
	sb := src.Bounds()

	c.mu.Lock()
	defer c.mu.Unlock()

	db := c.img.Bounds()
	p := Fit(sb.Dx(), sb.Dy(), db.Dx(), db.Dy())

	// 余白は前回の写真が残らないよう塗り直す
	draw.Draw(c.img, db, image.Black, image.Point{}, draw.Src)
	draw.ApproxBiLinear.Scale(c.img, p.Rect(), src, sb, draw.Src, nil)

	c.empty = false
	c.takenAt = time.Now()
	return p
}

// Clear はキャンバスを空にする
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.img = image.NewRGBA(c.img.Bounds())
	c.empty = true
	c.takenAt = time.Time{}
}

// Empty はまだ撮影されていないかを返す
func (c *Canvas) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.empty
}

// Size はキャンバスの現在のサイズを返す
func (c *Canvas) Size() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// TakenAt は撮影時刻を返す
func (c *Canvas) TakenAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.takenAt
}

// Image は描画内容のコピーを返す
func (c *Canvas) Image() image.Image {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dst := image.NewRGBA(c.img.Bounds())
	copy(dst.Pix, c.img.Pix)
	return dst
}

// JPEG は描画内容をJPEGにエンコードする
func (c *Canvas) JPEG(quality int) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, c.img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEG エンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
