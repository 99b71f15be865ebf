package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc は設定ファイルが再読み込みされたときに呼ばれる
type ReloadFunc func(cfg *Config)

// Watcher は設定ファイルを監視し、変更時に再読み込みする
// 撮影タイミングのように再起動なしで反映できる値の更新に使う
type Watcher struct {
	path     string
	onReload ReloadFunc
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	current *Config
	wg      sync.WaitGroup
}

// NewWatcher は新しいWatcherを作成する
func NewWatcher(cfg *Config, onReload ReloadFunc) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("監視対象の設定ファイルがありません")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ファイル監視の作成に失敗: %w", err)
	}

	// エディタの置き換え保存に追従するためディレクトリごと監視する
	if err := w.Add(filepath.Dir(cfg.Path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("設定ディレクトリの監視に失敗: %w", err)
	}

	return &Watcher{
		path:     filepath.Clean(cfg.Path),
		onReload: onReload,
		watcher:  w,
		current:  cfg,
	}, nil
}

// Start は監視ゴルーチンを開始する
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Close は監視を終了する
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// Current は最後に読み込んだ設定を返す
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("設定ファイル監視エラー: %v", err)
		}
	}
}

// reload は設定ファイルを読み直す
// 検証に失敗した場合は以前の設定を維持する
func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		log.Printf("設定の再読み込みに失敗しました（以前の設定を維持します）: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	log.Printf("設定を再読み込みしました: %s", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
