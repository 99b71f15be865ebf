package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // LoadDirでJPEGも読めるようにする
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"photobooth/internal/photo"
)

// ErrNoImages は画像が1枚もないことを示す
var ErrNoImages = errors.New("カウントダウン画像がありません")

// ImageSet はカウントダウン画像を残り秒数の順に保持する
// index 0 が「1」、index 1 が「2」… に対応する
type ImageSet struct {
	images  []image.Image
	encoded [][]byte // 配信用のPNGキャッシュ
}

// NewImageSet は画像列からImageSetを作成する
func NewImageSet(images []image.Image) (*ImageSet, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	encoded := make([][]byte, 0, len(images))
	for i, img := range images {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("カウントダウン画像 %d のPNGエンコードに失敗: %w", i, err)
		}
		encoded = append(encoded, buf.Bytes())
	}

	return &ImageSet{images: images, encoded: encoded}, nil
}

// LoadDir はディレクトリ内のPNG/JPEG画像をファイル名の数字順に読み込む
func LoadDir(dir string) (*ImageSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("画像ディレクトリの読み取りに失敗: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, entry.Name())
		}
	}

	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := trailingNumber(names[i]), trailingNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	images := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	return NewImageSet(images)
}

// Generate は数字を描いたカウントダウン画像をn枚生成する
func Generate(n, size int) (*ImageSet, error) {
	images := make([]image.Image, 0, n)
	for i := 1; i <= n; i++ {
		images = append(images, renderLabel(strconv.Itoa(i), size))
	}
	return NewImageSet(images)
}

// Len は画像の枚数を返す
func (s *ImageSet) Len() int {
	return len(s.images)
}

// At はi番目の画像を返す
func (s *ImageSet) At(i int) (image.Image, bool) {
	if i < 0 || i >= len(s.images) {
		return nil, false
	}
	return s.images[i], true
}

// PNG はi番目の画像のPNGデータを返す
func (s *ImageSet) PNG(i int) ([]byte, bool) {
	if i < 0 || i >= len(s.encoded) {
		return nil, false
	}
	return s.encoded[i], true
}

// renderLabel は半透明の背景に白い文字を大きく描いた正方形画像を作る
func renderLabel(label string, size int) image.Image {
	face := basicfont.Face7x13
	metrics := face.Metrics()

	d := &font.Drawer{Face: face}
	w := d.MeasureString(label).Ceil()
	h := (metrics.Ascent + metrics.Descent).Ceil()

	small := image.NewRGBA(image.Rect(0, 0, w+2, h+2))
	d.Dst = small
	d.Src = image.NewUniform(color.White)
	d.Dot = fixed.P(1, 1+metrics.Ascent.Ceil())
	d.DrawString(label)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.NRGBA{A: 160}), image.Point{}, draw.Src)

	// 余白を残して中央に拡大配置
	inner := size * 3 / 4
	p := photo.Fit(small.Bounds().Dx(), small.Bounds().Dy(), inner, inner)
	r := p.Rect().Add(image.Pt((size-inner)/2, (size-inner)/2))
	draw.NearestNeighbor.Scale(dst, r, small, small.Bounds(), draw.Over, nil)

	return dst
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("画像ファイルを開けません: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗 (%s): %w", path, err)
	}
	return img, nil
}

// trailingNumber はファイル名末尾の数字を返す（例: Number-Animals-3.png → 3）
func trailingNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	end := len(base)
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	if start == end {
		return -1
	}
	n, err := strconv.Atoi(base[start:end])
	if err != nil {
		return -1
	}
	return n
}
