package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"os/exec"
	"strconv"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// maxFrameSize は1フレームとして持ち越すデータの上限
const maxFrameSize = 8 << 20

// V4L2Capturer はシェルコマンドを使ってV4L2デバイスから画像を取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
	}
}

// IsDeviceAvailable はV4L2デバイスが利用可能かチェックする
func (c *V4L2Capturer) IsDeviceAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", c.devicePath, "--info")
	return cmd.Run() == nil
}

// CaptureFrame は1フレームをキャプチャして画像として返す
// ctx がキャンセルされるとffmpegは終了させられる
func (c *V4L2Capturer) CaptureFrame(ctx context.Context) (image.Image, error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-i", c.devicePath,
		"-an",
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-",
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("フレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}

	img, err := jpeg.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}

	return img, nil
}

// StartStream は連続キャプチャ用のストリームを開始する
// ffmpegが終了するとerrorChanにエラーを送る
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-an",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sendError(errorChan, fmt.Errorf("stdoutパイプの作成に失敗: %w", err))
		return
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		sendError(errorChan, fmt.Errorf("ffmpegの起動に失敗: %w", err))
		return
	}

	go func() {
		defer func() {
			_ = cmd.Wait() // コンテキストキャンセル時のエラーは無視
		}()

		buffer := make([]byte, 64*1024)
		var pending []byte

		for {
			n, err := stdout.Read(buffer)
			if n > 0 {
				var frames [][]byte
				frames, pending = splitFrames(append(pending, buffer[:n]...))
				for _, frame := range frames {
					select {
					case frameChan <- frame:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				log.Printf("カメラ %s の映像が途切れました: %v", c.devicePath, err)
				sendError(errorChan, fmt.Errorf("フレーム読み取りエラー: %w", err))
				return
			}
		}
	}()
}

// TestCapture はデバイスから1フレーム取得できるか確認する
func (c *V4L2Capturer) TestCapture(ctx context.Context) error {
	_, err := c.CaptureFrame(ctx)
	return err
}

// splitFrames はJPEGの開始/終了マーカーでデータを分割する
// 完全なフレームと、次回に持ち越す未完成のデータを返す
// 終了マーカーが来ないまま maxFrameSize を超えたデータは捨てる
func splitFrames(data []byte) ([][]byte, []byte) {
	var frames [][]byte
	for {
		startIdx := bytes.Index(data, jpegStart)
		if startIdx == -1 {
			// 末尾の0xFFは次のマーカーの先頭かもしれない
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				return frames, []byte{0xFF}
			}
			return frames, nil
		}

		endIdx := bytes.Index(data[startIdx+2:], jpegEnd)
		if endIdx == -1 {
			if len(data)-startIdx > maxFrameSize {
				return frames, nil
			}
			rest := make([]byte, len(data)-startIdx)
			copy(rest, data[startIdx:])
			return frames, rest
		}

		end := startIdx + 2 + endIdx + 2
		frame := make([]byte, end-startIdx)
		copy(frame, data[startIdx:end])
		frames = append(frames, frame)
		data = data[end:]
	}
}

func sendError(errorChan chan<- error, err error) {
	select {
	case errorChan <- err:
	default:
	}
}
