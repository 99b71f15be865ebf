package camera

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"
)

// DeviceMonitor はカメラデバイスを定期的にスキャンし、一覧を保持する
// 抜き差しはログに残す
type DeviceMonitor struct {
	discovery Discovery
	interval  time.Duration

	mu        sync.RWMutex
	devices   []DeviceInfo
	scannedAt time.Time

	// 制御用
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDeviceMonitor は新しいDeviceMonitorを作成する
// interval が0以下の場合はバックグラウンドスキャンを行わない
func NewDeviceMonitor(discovery Discovery, interval time.Duration) *DeviceMonitor {
	return &DeviceMonitor{
		discovery: discovery,
		interval:  interval,
	}
}

// Start は初回スキャンを行い、バックグラウンドスキャンを開始する
func (m *DeviceMonitor) Start(ctx context.Context) error {
	if _, err := m.Refresh(ctx); err != nil {
		return fmt.Errorf("初期スキャンに失敗: %w", err)
	}

	if m.interval <= 0 {
		return nil
	}

	scanCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.backgroundScan(scanCtx)
	return nil
}

// Stop はバックグラウンドスキャンを停止する
func (m *DeviceMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Devices は最後にスキャンしたデバイス一覧を返す
// まだ一度もスキャンしていなければスキャンする
func (m *DeviceMonitor) Devices(ctx context.Context) ([]DeviceInfo, error) {
	m.mu.RLock()
	scanned := !m.scannedAt.IsZero()
	devices := slices.Clone(m.devices)
	m.mu.RUnlock()

	if scanned {
		return devices, nil
	}
	return m.Refresh(ctx)
}

// ScannedAt は最後にスキャンした時刻を返す
func (m *DeviceMonitor) ScannedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scannedAt
}

// Refresh はデバイスを再スキャンする
func (m *DeviceMonitor) Refresh(ctx context.Context) ([]DeviceInfo, error) {
	devices, err := m.discovery.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	previous := m.devices
	first := m.scannedAt.IsZero()
	m.devices = devices
	m.scannedAt = time.Now()
	m.mu.Unlock()

	if first {
		log.Printf("カメラデバイスを%d台検出しました", len(devices))
	} else {
		logChanges(previous, devices)
	}

	return slices.Clone(devices), nil
}

// SelectDevice は再スキャンした上で使用するデバイスを決める
// 自動選択の場合は最初のメインカメラを返す
// デバイスが指定されていて見つからない場合は ErrNoDevice とパスだけの情報を返す
func (m *DeviceMonitor) SelectDevice(ctx context.Context, device string) (DeviceInfo, error) {
	devices, err := m.Refresh(ctx)
	if err != nil {
		return DeviceInfo{Device: device}, err
	}

	if IsAutoDevice(device) {
		info, ok := MainDevice(devices)
		if !ok {
			return DeviceInfo{}, ErrNoDevice
		}
		return info, nil
	}

	i := slices.IndexFunc(devices, func(d DeviceInfo) bool { return d.Device == device })
	if i < 0 {
		return DeviceInfo{Device: device}, fmt.Errorf("%w: %s", ErrNoDevice, device)
	}
	return devices[i], nil
}

// backgroundScan は定期的なデバイススキャンを実行する
func (m *DeviceMonitor) backgroundScan(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Printf("デバイススキャンに失敗: %v", err)
			}
		}
	}
}

// logChanges は接続・切断されたデバイスをログに出す
func logChanges(previous, current []DeviceInfo) {
	for _, added := range missingFrom(current, previous) {
		log.Printf("カメラが接続されました: %s (%s)", added.Device, added.Name)
	}
	for _, removed := range missingFrom(previous, current) {
		log.Printf("カメラが外されました: %s (%s)", removed.Device, removed.Name)
	}
}

// missingFrom は a にあって b にないデバイスを返す
func missingFrom(a, b []DeviceInfo) []DeviceInfo {
	var result []DeviceInfo
	for _, d := range a {
		found := slices.ContainsFunc(b, func(o DeviceInfo) bool {
			return o.Device == d.Device
		})
		if !found {
			result = append(result, d)
		}
	}
	return result
}
