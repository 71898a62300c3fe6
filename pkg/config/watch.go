package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/dittonet/internal/logger"
)

// Watcher reloads the configuration file when it changes on disk and hands
// each successfully validated Config to a callback. Invalid edits are logged
// and ignored so a half-written file never replaces a good configuration.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)
	w        *fsnotify.Watcher
}

// NewWatcher watches path. The parent directory is watched rather than the
// file so editors that replace the file via rename are still detected.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &Watcher{
		path:     abs,
		debounce: 200 * time.Millisecond,
		onChange: onChange,
		w:        w,
	}, nil
}

// Run processes file events until ctx is cancelled.
func (cw *Watcher) Run(ctx context.Context) {
	defer func() { _ = cw.w.Close() }()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-cw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(cw.debounce)
			} else {
				timer.Reset(cw.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			cw.reload()

		case err, ok := <-cw.w.Errors:
			if !ok {
				return
			}
			logger.Warn("Config watcher error", logger.Err(err))
		}
	}
}

func (cw *Watcher) reload() {
	cfg, err := Load(cw.path)
	if err != nil {
		logger.Warn("Ignoring invalid configuration change", logger.Path(cw.path), logger.Err(err))
		return
	}
	logger.Info("Configuration reloaded", logger.Path(cw.path))
	cw.onChange(cfg)
}
