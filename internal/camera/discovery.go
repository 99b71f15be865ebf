package camera

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DeviceAuto は最初に見つかったメインカメラを使う指定
const DeviceAuto = "auto"

// ErrNoDevice は使用できるカメラデバイスが見つからないことを示す
var ErrNoDevice = errors.New("使用できるカメラデバイスが見つかりません")

// IsAutoDevice はデバイス指定が自動選択かを返す
// 空の指定も自動選択として扱う
func IsAutoDevice(device string) bool {
	return device == "" || device == DeviceAuto
}

// カラー映像として扱うピクセルフォーマット
var colorFormats = []string{"MJPG", "YUYV"}

var (
	devicePathPattern = regexp.MustCompile(`video(\d+)$`)
	formatPattern     = regexp.MustCompile(`\[\d+\]: '(\w+)'`)
)

// probeFunc はデバイスの v4l2-ctl 出力を返す
type probeFunc func(ctx context.Context, device string) ([]byte, error)

// V4L2Discovery は /dev/video* を v4l2-ctl で調べてカメラを列挙する
type V4L2Discovery struct {
	pattern string
	probe   probeFunc
}

// NewV4L2Discovery は新しいV4L2Discoveryを作成する
func NewV4L2Discovery() *V4L2Discovery {
	return &V4L2Discovery{
		pattern: "/dev/video*",
		probe:   probeV4L2,
	}
}

// probeV4L2 はドライバー情報とフォーマット一覧を1回の v4l2-ctl 呼び出しで取得する
func probeV4L2(ctx context.Context, device string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info", "--list-formats")
	return cmd.Output()
}

// ListDevices はデバイス番号順にカメラを列挙する
// v4l2-ctl で開けないノード（メタデータ用など）は含めない
func (d *V4L2Discovery) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	type node struct {
		path string
		num  int
	}
	var nodes []node
	for _, path := range matches {
		if num, ok := deviceNumber(path); ok {
			nodes = append(nodes, node{path: path, num: num})
		}
	}
	slices.SortFunc(nodes, func(a, b node) int { return cmp.Compare(a.num, b.num) })

	devices := make([]DeviceInfo, 0, len(nodes))
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output, err := d.probe(ctx, n.path)
		if err != nil {
			continue
		}

		info := parseV4L2Info(n.path, string(output))
		if info.Name == "" {
			info.Name = fmt.Sprintf("カメラ %d", n.num)
		}
		devices = append(devices, info)
	}

	markMainCameras(devices)
	return devices, nil
}

// parseV4L2Info は `v4l2-ctl --info --list-formats` の出力を読む
func parseV4L2Info(device, output string) DeviceInfo {
	info := DeviceInfo{Device: device}

	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case key == "Driver name" && info.Driver == "":
			info.Driver = value
		case key == "Card type" && info.Name == "":
			info.Name = value
		case key == "Bus info" && info.Bus == "":
			info.Bus = value
		}
	}

	for _, m := range formatPattern.FindAllStringSubmatch(output, -1) {
		if !slices.Contains(info.Formats, m[1]) {
			info.Formats = append(info.Formats, m[1])
		}
	}

	info.Color = slices.ContainsFunc(info.Formats, func(f string) bool {
		return slices.Contains(colorFormats, f)
	})
	return info
}

// markMainCameras は物理カメラごとに最も小さい番号のカラーノードをメインにする
// 同じカメラは Bus info（なければカード名）で見分ける
// 赤外線カメラなどグレースケールのみのノードはメインにしない
func markMainCameras(devices []DeviceInfo) {
	seen := make(map[string]bool)
	for i := range devices {
		d := &devices[i]
		if !d.Color {
			continue
		}

		key := d.Bus
		if key == "" {
			key = d.Name
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		d.Main = true
	}
}

// deviceNumber は /dev/videoN の N を返す
func deviceNumber(device string) (int, bool) {
	m := devicePathPattern.FindStringSubmatch(device)
	if m == nil {
		return 0, false
	}
	num, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return num, true
}

// MainDevice は一覧の最初のメインカメラを返す
func MainDevice(devices []DeviceInfo) (DeviceInfo, bool) {
	i := slices.IndexFunc(devices, func(d DeviceInfo) bool { return d.Main })
	if i < 0 {
		return DeviceInfo{}, false
	}
	return devices[i], true
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu      sync.RWMutex
	devices []DeviceInfo
	err     error
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	m := &MockDiscovery{}
	m.SetDevices(devices)
	return m
}

// SetDevices は接続されているデバイスを差し替える（抜き差しの模擬）
// 全てカラーの別々のカメラとして扱う
func (m *MockDiscovery) SetDevices(devices []string) {
	infos := make([]DeviceInfo, 0, len(devices))
	for i, device := range devices {
		infos = append(infos, DeviceInfo{
			Device:  device,
			Name:    fmt.Sprintf("テストカメラ %d", i+1),
			Driver:  "mock",
			Bus:     fmt.Sprintf("mock-%d", i),
			Formats: []string{"MJPG"},
			Color:   true,
			Main:    true,
		})
	}
	m.SetDeviceInfos(infos)
}

// SetDeviceInfos はデバイス情報をそのまま差し替える
func (m *MockDiscovery) SetDeviceInfos(devices []DeviceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = slices.Clone(devices)
}

// SetError はスキャンを失敗させる
func (m *MockDiscovery) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ListDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ListDevices(_ context.Context) ([]DeviceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}
	return slices.Clone(m.devices), nil
}
