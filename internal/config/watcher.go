package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hookwise/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches .hookwise/*.yaml for changes and triggers a reload callback.
// Used by the Notify stage to pick up hot-reloadable configuration without a
// restart. Debounced so editor save bursts produce a single reload.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	configDir   string
	onReload    func(*Config)
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	reloads int
	errors  int
}

// NewWatcher creates a watcher for the given workspace. onReload receives the
// freshly loaded config after each settled change.
func NewWatcher(workspace string, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fsw,
		configDir:   StateDir(workspace),
		onReload:    onReload,
		debounceMap: make(map[string]time.Time),
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching the config directory. Non-blocking. A missing
// directory is not an error; the watch simply stays inactive.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if _, err := os.Stat(w.configDir); err == nil {
		if err := w.watcher.Add(w.configDir); err != nil {
			logging.Get(logging.CategoryBoot).Warn("config watcher: initial watch failed: %v", err)
		} else {
			logging.BootDebug("config watcher: watching %s", w.configDir)
		}
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryBoot).Error("config watcher: close error: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Error("config watcher: %v", err)
			w.mu.Lock()
			w.errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	logging.BootDebug("config watcher: change in %s", filepath.Base(event.Name))

	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	settled := false
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			delete(w.debounceMap, path)
			settled = true
		}
	}
	if settled {
		w.reloads++
	}
	w.mu.Unlock()

	if !settled || w.onReload == nil {
		return
	}

	cfg, err := Load(filepath.Join(w.configDir, "config.yaml"))
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("config reload: using defaults: %v", err)
	}
	_ = logging.ReloadConfig()
	w.onReload(cfg)
}

// Reloads returns how many reloads have fired.
func (w *Watcher) Reloads() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.reloads
}
