package config

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeHandler is called with the new snapshot after a successful reload.
type ChangeHandler func(cfg *Config)

// Manager serves an atomically swapped config snapshot and reloads it when
// the file on disk changes. Editors and config maps often replace the file
// (rename/create) rather than writing in place, so create and rename
// events on the watched name trigger a reload too.
type Manager struct {
	path     string
	logger   *zap.Logger
	current  atomic.Pointer[Config]
	watcher  *fsnotify.Watcher
	handlers []ChangeHandler
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once

	// debounce collapses the event bursts some editors produce
	debounce time.Duration
}

// NewManager loads the initial snapshot and prepares the watcher. Start
// must be called to begin watching.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		path:     path,
		logger:   logger,
		stopCh:   make(chan struct{}),
		debounce: 200 * time.Millisecond,
	}
	m.current.Store(cfg)
	return m, nil
}

// Get returns the current snapshot. Never nil after NewManager succeeds.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// OnChange registers a handler invoked after every successful reload.
func (m *Manager) OnChange(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Start watches the config file's directory for changes. A missing file
// or directory is not fatal; the initial snapshot keeps serving.
func (m *Manager) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = w

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		m.logger.Warn("Config hot reload disabled, directory not watchable",
			zap.String("dir", dir), zap.Error(err))
		_ = w.Close()
		m.watcher = nil
		return nil
	}

	go m.watchLoop()
	m.logger.Info("Config hot reload enabled", zap.String("path", m.path))
	return nil
}

// Stop ends the watch loop. Safe to call multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.watcher != nil {
			_ = m.watcher.Close()
		}
	})
}

func (m *Manager) watchLoop() {
	var timer *time.Timer
	for {
		select {
		case <-m.stopCh:
			return
		case evt, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(m.debounce, m.reload)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

// reload swaps in a new snapshot. A file that fails to load or validate
// leaves the previous snapshot in place.
func (m *Manager) reload() {
	cfg, err := LoadFile(m.path)
	if err != nil {
		m.logger.Error("Config reload rejected, keeping previous snapshot",
			zap.String("path", m.path), zap.Error(err))
		return
	}
	m.current.Store(cfg)
	m.logger.Info("Config reloaded",
		zap.Int("engine_max_depth", cfg.Engine.MaxDepth),
		zap.Int("engine_max_sub_objectives", cfg.Engine.MaxSubObjectives))

	m.mu.Lock()
	handlers := make([]ChangeHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()
	for _, h := range handlers {
		h(cfg)
	}
}
