package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/msto63/hive/pkg/core/logging"
)

// ChangeFunc is called with the new configuration after a successful reload
type ChangeFunc func(cfg *Config)

// Watcher reloads the config file when it changes on disk. The parent
// directory is watched rather than the file, so editors that replace the
// file by rename are picked up.
type Watcher struct {
	mu        sync.RWMutex
	path      string
	current   *Config
	callbacks []ChangeFunc
	debounce  time.Duration
	logger    *logging.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher for path. initial is returned by Current
// until the first reload.
func NewWatcher(path string, initial *Config, logger *logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logging.New("config-watcher")
	}

	return &Watcher{
		path:     abs,
		current:  initial,
		debounce: 300 * time.Millisecond,
		logger:   logger,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period before a reload. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// OnChange registers a callback for successful reloads
func (w *Watcher) OnChange(fn ChangeFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Current returns the most recently loaded configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.logger.Info("Watching config file", "path", w.path)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Closing config watcher failed", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	w.mu.RLock()
	debounce := w.debounce
	w.mu.RUnlock()

	// Stopped until the first relevant event arrives
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

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
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)

		case <-timer.C:
			w.reload()
		}
	}
}

// reload parses the file and notifies callbacks. An invalid file keeps the
// previous configuration active.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Config reload rejected, keeping previous config", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]ChangeFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
}
