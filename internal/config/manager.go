package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeHandler is invoked with the freshly reloaded Config whenever the
// watched file changes.
type ChangeHandler func(Config) error

// Manager watches a single config file and re-parses it on write/create
// events, calling one registered ChangeHandler per change.
type Manager struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	handler ChangeHandler
	current Config

	stopCh chan struct{}
}

// NewManager builds a Manager watching path. The file need not exist yet;
// Start will attempt to load it and fall back to Default() if absent.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	return &Manager{path: path, logger: logger, watcher: watcher, stopCh: make(chan struct{})}, nil
}

// RegisterHandler sets the callback invoked after each successful reload.
func (m *Manager) RegisterHandler(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Current returns the most recently loaded Config.
func (m *Manager) Current() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Start loads the config once, then watches its parent directory for
// changes (fsnotify watches directories more reliably than bare files
// across editors' write-then-rename save patterns).
func (m *Manager) Start() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()

	if m.path != "" {
		dir := dirOf(m.path)
		if err := m.watcher.Add(dir); err != nil {
			m.logger.Warn("config: watch failed, hot-reload disabled", zap.String("dir", dir), zap.Error(err))
			return nil
		}
		go m.watch()
	}
	return nil
}

func (m *Manager) watch() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Name != m.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m.reload()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config: watcher error", zap.Error(err))
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) reload() {
	cfg, err := Load(m.path)
	if err != nil {
		m.logger.Error("config: reload failed, keeping previous config", zap.Error(err))
		return
	}
	m.mu.Lock()
	m.current = cfg
	handler := m.handler
	m.mu.Unlock()

	m.logger.Info("config: reloaded", zap.String("path", m.path))
	if handler != nil {
		if err := handler(cfg); err != nil {
			m.logger.Error("config: change handler failed", zap.Error(err))
		}
	}
}

// Stop halts the watch loop and closes the underlying fsnotify watcher.
func (m *Manager) Stop() error {
	close(m.stopCh)
	return m.watcher.Close()
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
