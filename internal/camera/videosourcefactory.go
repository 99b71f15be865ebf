package camera

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// SourceConfig はソース作成設定
type SourceConfig struct {
	Device   string   // デバイスパス
	Name     string   // 表示名（空ならデバイスパスから作る）
	Settings Settings // 設定
}

// SourceFactory はソース作成ファクトリー
type SourceFactory interface {
	CreateSource(sourceType SourceType, config SourceConfig) (Source, error)
	GetSupportedTypes() []SourceType
}

// SourceCreator はソース作成関数の型
type SourceCreator func(config SourceConfig) (Source, error)

// DefaultSourceFactory は標準実装
type DefaultSourceFactory struct {
	creators map[SourceType]SourceCreator
}

// NewSourceFactory は新しいファクトリーを作成する
func NewSourceFactory() *DefaultSourceFactory {
	factory := &DefaultSourceFactory{
		creators: make(map[SourceType]SourceCreator),
	}

	factory.Register(SourceTypeUSBCamera, NewUSBCameraSourceFromConfig)
	factory.Register(SourceTypeTestPattern, NewTestPatternSourceFromConfig)

	return factory
}

// Register はソース作成関数を登録する
func (f *DefaultSourceFactory) Register(sourceType SourceType, creator SourceCreator) {
	f.creators[sourceType] = creator
}

// CreateSource はソースを作成する
func (f *DefaultSourceFactory) CreateSource(sourceType SourceType, config SourceConfig) (Source, error) {
	creator, exists := f.creators[sourceType]
	if !exists {
		return nil, fmt.Errorf("サポートされていないソースタイプ: %s", sourceType)
	}

	return creator(withDefaults(config))
}

// GetSupportedTypes はサポートされているソースタイプを返す
func (f *DefaultSourceFactory) GetSupportedTypes() []SourceType {
	types := make([]SourceType, 0, len(f.creators))
	for sourceType := range f.creators {
		types = append(types, sourceType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// withDefaults は未指定の設定をデフォルト値で埋める
func withDefaults(config SourceConfig) SourceConfig {
	if config.Settings.Width <= 0 {
		config.Settings.Width = 1280
	}
	if config.Settings.Height <= 0 {
		config.Settings.Height = 720
	}
	if config.Settings.FPS <= 0 {
		config.Settings.FPS = 15
	}
	return config
}

// NewUSBCameraSourceFromConfig は設定からUSBCameraSourceを作成する
func NewUSBCameraSourceFromConfig(config SourceConfig) (Source, error) {
	if IsAutoDevice(config.Device) {
		return nil, fmt.Errorf("USBカメラの作成にはデバイスパスが必要です")
	}

	name := config.Name
	if name == "" {
		name = fmt.Sprintf("USB Camera (%s)", config.Device)
	}

	info := SourceInfo{
		ID:          generateSourceID(),
		Name:        name,
		Type:        SourceTypeUSBCamera,
		Driver:      "v4l2",
		Description: fmt.Sprintf("USB Camera: %s", name),
		Device:      config.Device,
		Width:       config.Settings.Width,
		Height:      config.Settings.Height,
	}

	return NewUSBCameraSource(info, config.Settings), nil
}

// NewTestPatternSourceFromConfig は設定からTestPatternSourceを作成する
func NewTestPatternSourceFromConfig(config SourceConfig) (Source, error) {
	return NewTestPatternSource(config.Settings), nil
}

// generateSourceID はユニークなソースIDを生成する
func generateSourceID() string {
	return "source_" + uuid.NewString()
}
