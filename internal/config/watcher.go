package config

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watcher polls the settings file and reports every successfully parsed
// change. A file that fails to parse is logged and the previous settings
// stay in effect.
type Watcher struct {
	path     string
	logger   *zap.Logger
	onChange func(*Settings)

	mu       sync.Mutex
	current  *Settings
	modTime  time.Time
	interval time.Duration
}

func NewWatcher(path string, initial *Settings, logger *zap.Logger, onChange func(*Settings)) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{path: path, logger: logger, onChange: onChange, current: initial}
	if fi, err := os.Stat(path); err == nil {
		w.modTime = fi.ModTime()
	}
	w.interval = initial.CheckInterval()
	return w
}

func (w *Watcher) Current() *Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run blocks until ctx is done. The poll interval follows the most recent
// settings.
func (w *Watcher) Run(ctx context.Context) {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.Check()
			w.mu.Lock()
			next := w.interval
			w.mu.Unlock()
			timer.Reset(next)
		}
	}
}

// Check reloads the file when its modification time changed. It returns
// true when a new snapshot was published.
func (w *Watcher) Check() bool {
	fi, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	if fi.ModTime().Equal(w.modTime) {
		w.mu.Unlock()
		return false
	}
	w.modTime = fi.ModTime()
	w.mu.Unlock()

	raw, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("settings_read_failed", zap.String("path", w.path), zap.Error(err))
		return false
	}
	s, err := ParseSettings(raw)
	if err != nil {
		w.logger.Warn("settings_parse_failed", zap.String("path", w.path), zap.Error(err))
		return false
	}

	w.mu.Lock()
	w.current = s
	w.interval = s.CheckInterval()
	w.mu.Unlock()

	w.logger.Info("settings_reloaded", zap.String("path", w.path))
	if w.onChange != nil {
		w.onChange(s)
	}
	return true
}
