package runtime

import (
	"context"
	"slices"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/config"
)

// SettingsWatcher follows the configuration file and applies the settings
// that can change without a restart:
//   - logging level and format
//   - hostname shown on the admin page
//   - host slots whose value changed in the file
//
// The file watcher runs on its own goroutine; every change is handed to the
// task queue and applied on the scheduler goroutine.
type SettingsWatcher struct {
	rt      *Runtime
	watcher *config.Watcher

	stopCh  chan struct{}
	stopped chan struct{}
}

// WatchSettings creates a watcher for the runtime's config path. It returns
// nil when the runtime was built without one.
func (rt *Runtime) WatchSettings() (*SettingsWatcher, error) {
	if rt.configPath == "" {
		return nil, nil
	}
	sw := &SettingsWatcher{
		rt:      rt,
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	w, err := config.NewWatcher(rt.configPath, sw.submit)
	if err != nil {
		return nil, err
	}
	sw.watcher = w
	return sw, nil
}

// Start begins watching until Stop is called or ctx is cancelled.
func (w *SettingsWatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-w.stopCh:
		case <-ctx.Done():
		}
		cancel()
	}()
	go func() {
		defer close(w.stopped)
		logger.Info("Settings watcher started", logger.KeyPath, w.rt.configPath)
		w.watcher.Run(ctx)
	}()
}

// Stop ends watching and waits for the watcher goroutine to exit.
func (w *SettingsWatcher) Stop() {
	select {
	case <-w.stopCh:
		return
	default:
		close(w.stopCh)
	}
	<-w.stopped
	logger.Debug("Settings watcher stopped")
}

func (w *SettingsWatcher) submit(cfg *config.Config) {
	w.rt.tasks.SubmitFunc("settings-reload", 0, func(ctx context.Context) error {
		return w.rt.applySettings(ctx, cfg)
	})
}

// applySettings merges the reloadable parts of next into the running
// configuration. Everything else takes effect on the next restart.
func (rt *Runtime) applySettings(ctx context.Context, next *config.Config) error {
	cur := *rt.cfg

	if next.Logging.Level != cur.Logging.Level {
		logger.SetLevel(next.Logging.Level)
		cur.Logging.Level = next.Logging.Level
	}
	if next.Logging.Format != cur.Logging.Format {
		logger.SetFormat(next.Logging.Format)
		cur.Logging.Format = next.Logging.Format
	}
	cur.General.Hostname = next.General.Hostname

	for i, h := range next.Hosts {
		if i < len(cur.Hosts) && cur.Hosts[i] == h {
			continue
		}
		if err := rt.fuji.SetHost(ctx, i, h); err != nil {
			return err
		}
	}
	cur.Hosts = slices.Clone(next.Hosts)

	rt.cfg = &cur
	logger.InfoCtx(ctx, "Settings applied", "level", cur.Logging.Level, "hosts", len(cur.Hosts))
	return nil
}
