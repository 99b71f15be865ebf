package photo

import (
	"image"
	"math"
)

// Placement はキャンバス内に映像フレームを描画する位置と倍率
type Placement struct {
	Scale  float64 // 映像に掛ける一様な倍率
	X, Y   float64 // 描画開始位置（キャンバス座標）
	Width  float64 // 描画幅
	Height float64 // 描画高さ
}

// Fit は映像(srcW×srcH)をキャンバス(dstW×dstH)に切り取りなしで収める配置を計算する
// 倍率は幅比と高さ比の小さい方で、余白が均等になるよう中央に寄せる
func Fit(srcW, srcH, dstW, dstH int) Placement {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return Placement{}
	}

	scale := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))

	return Placement{
		Scale:  scale,
		X:      float64(dstW)/2 - float64(srcW)/2*scale,
		Y:      float64(dstH)/2 - float64(srcH)/2*scale,
		Width:  float64(srcW) * scale,
		Height: float64(srcH) * scale,
	}
}

// Rect は配置をピクセル単位の矩形に丸める
func (p Placement) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(p.X)),
		int(math.Round(p.Y)),
		int(math.Round(p.X+p.Width)),
		int(math.Round(p.Y+p.Height)),
	)
}

// AdjustedHeight は幅を保ったまま映像と同じ縦横比になるキャンバスの高さを返す
func AdjustedHeight(width, srcW, srcH int) int {
	if srcW <= 0 || srcH <= 0 {
		return width
	}
	ratio := float64(srcW) / float64(srcH)
	return int(math.Round(float64(width) / ratio))
}

// FitDisplay は表示枠(boxW×boxH)に映像の縦横比を保って収まる表示サイズを返す
// 枠が横長なら高さ基準、そうでなければ幅基準で合わせる
func FitDisplay(videoW, videoH, boxW, boxH int) (int, int) {
	if videoW <= 0 || videoH <= 0 || boxW <= 0 || boxH <= 0 {
		return boxW, boxH
	}

	videoRatio := float64(videoW) / float64(videoH)
	elementRatio := float64(boxW) / float64(boxH)

	width, height := float64(boxW), float64(boxH)
	if elementRatio > videoRatio {
		width = height * videoRatio
	} else {
		height = width / videoRatio
	}

	return int(math.Round(width)), int(math.Round(height))
}
