// Package sound はセッションの効果音を再生する
package sound

// Cue は効果音の種類
type Cue int

const (
	// CueReady はセッション開始時の音
	CueReady Cue = iota
	// CueEnd はセッション終了時の音
	CueEnd
	// CueShoot はシャッター音
	CueShoot
)

// AllCues は読み込み対象の全ての効果音
var AllCues = []Cue{CueReady, CueEnd, CueShoot}

// String は効果音の名前を返す
func (c Cue) String() string {
	switch c {
	case CueReady:
		return "ready"
	case CueEnd:
		return "end"
	case CueShoot:
		return "shoot"
	default:
		return "unknown"
	}
}

// FileName は効果音ディレクトリ内のファイル名を返す
func (c Cue) FileName() string {
	return "_" + c.String() + ".wav"
}

// FileNames は探すファイル名を優先順に返す
func (c Cue) FileNames() []string {
	return []string{c.FileName(), "_" + c.String() + ".ogg"}
}

// tone はファイルがない場合に生成する代替音の周波数と長さ（ミリ秒）
func (c Cue) tone() (float64, int) {
	switch c {
	case CueReady:
		return 660, 250
	case CueEnd:
		return 440, 600
	default:
		return 1320, 80
	}
}
