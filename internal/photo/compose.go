package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ErrNoPhotos は撮影済みの写真が1枚もないことを示す
var ErrNoPhotos = fmt.Errorf("%w: 撮影済みの写真がありません", ErrNoCanvas)

// Composer は撮影済みの写真を1枚のプリント用画像に並べる
type Composer struct {
	cols    int
	gap     int
	quality int
}

// NewComposer は新しいComposerを作成する
// cols は横に並べる枚数、gap は写真の間と外周の余白(px)
func NewComposer(cols, gap, quality int) *Composer {
	if cols < 1 {
		cols = 1
	}
	if gap < 0 {
		gap = 0
	}
	return &Composer{cols: cols, gap: gap, quality: quality}
}

// Layout は並べ方
type Layout struct {
	Cols       int
	Rows       int
	CellWidth  int
	CellHeight int
	Gap        int
}

// Size は出力画像のサイズを返す
func (l Layout) Size() (int, int) {
	w := l.Cols*l.CellWidth + (l.Cols+1)*l.Gap
	h := l.Rows*l.CellHeight + (l.Rows+1)*l.Gap
	return w, h
}

// Cell はi番目の写真の配置先を返す
func (l Layout) Cell(i int) image.Rectangle {
	row := i / l.Cols
	col := i % l.Cols

	x := l.Gap + col*(l.CellWidth+l.Gap)
	y := l.Gap + row*(l.CellHeight+l.Gap)
	return image.Rect(x, y, x+l.CellWidth, y+l.CellHeight)
}

// layout はn枚を並べるレイアウトを計算する
// 写真がcolsより少ない場合は横一列にする
func (c *Composer) layout(n, cellW, cellH int) Layout {
	cols := min(c.cols, n)
	rows := (n + cols - 1) / cols

	return Layout{
		Cols:       cols,
		Rows:       rows,
		CellWidth:  cellW,
		CellHeight: cellH,
		Gap:        c.gap,
	}
}

// Compose は撮影済みの写真を撮影順に並べた画像を作る
// 未撮影のキャンバスは飛ばす
func (c *Composer) Compose(strip *Strip) (image.Image, error) {
	var (
		photos       []image.Image
		cellW, cellH int
	)
	for i := 0; i < strip.Len(); i++ {
		canvas, err := strip.At(i)
		if err != nil {
			break // 撮影開始で枚数が変わった
		}
		if canvas.Empty() {
			continue
		}

		img := canvas.Image()
		b := img.Bounds()
		cellW = max(cellW, b.Dx())
		cellH = max(cellH, b.Dy())
		photos = append(photos, img)
	}

	if len(photos) == 0 {
		return nil, ErrNoPhotos
	}

	layout := c.layout(len(photos), cellW, cellH)
	w, h := layout.Size()

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)

	for i, img := range photos {
		cell := layout.Cell(i)
		sb := img.Bounds()

		// 縦横比を保ってセルの中央に置く
		p := Fit(sb.Dx(), sb.Dy(), cell.Dx(), cell.Dy())
		dst := p.Rect().Add(cell.Min)
		draw.CatmullRom.Scale(out, dst, img, sb, draw.Src, nil)
	}

	return out, nil
}

// JPEG は並べた画像をJPEGにエンコードする
func (c *Composer) JPEG(strip *Strip) ([]byte, error) {
	img, err := c.Compose(strip)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("JPEG エンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
