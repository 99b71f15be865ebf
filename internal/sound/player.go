package sound

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// Player は効果音を再生する
// Play は再生完了を待たずに戻る
type Player interface {
	Play(cue Cue)
}

// NopPlayer は何も再生しない
type NopPlayer struct{}

// Play は何もしない
func (NopPlayer) Play(Cue) {}

// BeepPlayer はスピーカーから効果音を再生する
type BeepPlayer struct {
	buffers map[Cue]*beep.Buffer
	mu      sync.Mutex
}

var (
	speakerOnce sync.Once
	speakerErr  error
)

// New は設定に応じたPlayerを作成する
// スピーカーが使えない環境では音なしで動作を続ける
func New(enabled bool, dir string, sampleRate int) Player {
	if !enabled {
		log.Println("効果音は無効です")
		return NopPlayer{}
	}

	p, err := NewBeepPlayer(dir, sampleRate)
	if err != nil {
		log.Printf("効果音を無効にします: %v", err)
		return NopPlayer{}
	}
	return p
}

// NewBeepPlayer はスピーカーを初期化し、効果音を読み込む
func NewBeepPlayer(dir string, sampleRate int) (*BeepPlayer, error) {
	sr := beep.SampleRate(sampleRate)

	speakerOnce.Do(func() {
		speakerErr = speaker.Init(sr, sr.N(time.Second/10))
	})
	if speakerErr != nil {
		return nil, fmt.Errorf("スピーカーの初期化に失敗: %w", speakerErr)
	}

	buffers, err := loadBuffers(dir, sr)
	if err != nil {
		return nil, err
	}
	return &BeepPlayer{buffers: buffers}, nil
}

// Play は効果音を再生する
func (p *BeepPlayer) Play(cue Cue) {
	b, ok := p.buffers[cue]
	if !ok {
		log.Printf("効果音 %s が見つかりません", cue)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	speaker.Play(b.Streamer(0, b.Len()))
}

// loadBuffers は全ての効果音をメモリに展開する
// WAV、なければOgg Vorbisを探し、どちらもない効果音は代替音を生成する
func loadBuffers(dir string, sr beep.SampleRate) (map[Cue]*beep.Buffer, error) {
	buffers := make(map[Cue]*beep.Buffer, len(AllCues))

	for _, cue := range AllCues {
		if dir != "" {
			if b, ok := loadCue(dir, cue, sr); ok {
				buffers[cue] = b
				continue
			}
		}

		b, err := toneBuffer(cue, sr)
		if err != nil {
			return nil, err
		}
		buffers[cue] = b
	}

	return buffers, nil
}

func loadCue(dir string, cue Cue, sr beep.SampleRate) (*beep.Buffer, bool) {
	for _, name := range cue.FileNames() {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		b, err := loadFile(path, sr)
		if err != nil {
			log.Printf("効果音ファイル %s を読み込めません: %v", path, err)
			continue
		}
		return b, true
	}

	log.Printf("効果音 %s のファイルがないため代替音を使います", cue)
	return nil, false
}

// loadFile は拡張子に応じてデコードし、再生用のサンプルレートに揃える
func loadFile(path string, sr beep.SampleRate) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	default:
		streamer, format, err = wav.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s のデコードに失敗: %w", filepath.Base(path), err)
	}
	defer func() {
		_ = streamer.Close()
	}()

	var s beep.Streamer = streamer
	if format.SampleRate != sr {
		s = beep.Resample(4, format.SampleRate, sr, streamer)
	}

	buffer := beep.NewBuffer(beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2})
	buffer.Append(s)
	return buffer, nil
}

func toneBuffer(cue Cue, sr beep.SampleRate) (*beep.Buffer, error) {
	freq, ms := cue.tone()

	tone, err := generators.SineTone(sr, freq)
	if err != nil {
		return nil, fmt.Errorf("代替音 %s の生成に失敗: %w", cue, err)
	}

	buffer := beep.NewBuffer(beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2})
	buffer.Append(beep.Take(sr.N(time.Duration(ms)*time.Millisecond), tone))
	return buffer, nil
}
