// Package runtime assembles the device core from configuration: the bus
// engine with every device on it, the Fuji slot table, the admin server,
// the deferred task queue and the restart coordinator.
//
// A Runtime replaces process-wide singletons. Everything it owns is touched
// only from the scheduler goroutine; other goroutines (config watcher,
// signal handler) hand work over through the task queue or the
// coordinator's atomics.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/bus"
	"github.com/marmos91/dittonet/pkg/config"
	"github.com/marmos91/dittonet/pkg/controlplane/api"
	"github.com/marmos91/dittonet/pkg/device/fuji"
	"github.com/marmos91/dittonet/pkg/device/netfs"
	"github.com/marmos91/dittonet/pkg/device/printer"
	"github.com/marmos91/dittonet/pkg/lifecycle"
	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/marmos91/dittonet/pkg/scheduler"
	"github.com/marmos91/dittonet/pkg/store/slots"
	"github.com/marmos91/dittonet/pkg/tasks"
)

// Info identifies the running build.
type Info struct {
	Version string
	Commit  string
	Date    string
}

// Runtime owns every long-lived component of the process.
type Runtime struct {
	cfg        *config.Config
	configPath string
	info       Info
	started    time.Time

	flash afero.Fs
	sd    afero.Fs

	port    bus.Port
	engine  *bus.Engine
	netfs   *netfs.Registry
	fuji    *fuji.Fuji
	printer *printer.Printer
	store   slots.Store

	tasks   *tasks.Manager
	restart *lifecycle.Coordinator
	server  *api.Server
}

type options struct {
	port       bus.Port
	flash      afero.Fs
	sd         afero.Fs
	sdSet      bool
	store      slots.Store
	restart    *lifecycle.Coordinator
	configPath string
	info       Info
	now        func() time.Time
	serverOpts []api.Option
}

// Option customizes how New assembles the runtime.
type Option func(*options)

// WithPort replaces the TCP listener the bus normally reads from.
func WithPort(p bus.Port) Option {
	return func(o *options) { o.port = p }
}

// WithFilesystems replaces the on-disk flash and SD roots. sd may be nil
// to run without local storage.
func WithFilesystems(flash, sd afero.Fs) Option {
	return func(o *options) {
		o.flash = flash
		o.sd = sd
		o.sdSet = true
	}
}

// WithSlotStore replaces the badger slot store.
func WithSlotStore(s slots.Store) Option {
	return func(o *options) { o.store = s }
}

// WithCoordinator shares a restart coordinator with the caller, typically
// so it can also receive interrupt signals.
func WithCoordinator(c *lifecycle.Coordinator) Option {
	return func(o *options) { o.restart = c }
}

// WithConfigPath is where admin config changes are saved and watched.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithInfo sets the build information shown on the admin page.
func WithInfo(info Info) Option {
	return func(o *options) { o.info = info }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithServerOptions adds options to the admin server.
func WithServerOptions(opts ...api.Option) Option {
	return func(o *options) { o.serverOpts = append(o.serverOpts, opts...) }
}

// New builds the runtime described by cfg. The admin server is created
// but not started; the slot table is loaded and its disks mounted.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{
		cfg:        cfg,
		configPath: o.configPath,
		info:       o.info,
		started:    o.now(),
		restart:    o.restart,
		tasks:      tasks.NewManager(o.now),
	}
	if rt.restart == nil {
		rt.restart = lifecycle.New(lifecycle.WithClock(o.now))
	}

	var err error
	if o.sdSet {
		rt.flash, rt.sd = o.flash, o.sd
	} else if rt.flash, rt.sd, err = openFilesystems(cfg.General); err != nil {
		return nil, err
	}

	codec, err := NewCodec(cfg.Bus.Type)
	if err != nil {
		return nil, err
	}

	rt.port = o.port
	if rt.port == nil {
		if rt.port, err = openPort(cfg.Bus); err != nil {
			return nil, err
		}
	}
	rt.engine = bus.NewEngine(codec, rt.port, metrics.NewBusMetrics())
	rt.netfs = netfs.NewDefaultRegistry(cfg.NetFS, rt.sd)

	rt.store = o.store
	if rt.store == nil {
		if rt.store, err = slots.Open(cfg.Store.Path, cfg.Store.InMemory); err != nil {
			rt.closePort()
			return nil, fmt.Errorf("failed to open slot store: %w", err)
		}
	}

	if err := rt.attachDevices(ctx, o.now); err != nil {
		rt.Close()
		return nil, err
	}

	rt.server = api.NewServer(cfg.ControlPlane, rt.deps(o.now), rt.serverOptions(o.serverOpts)...)

	logger.InfoCtx(ctx, "Runtime initialized",
		logger.KeyBus, codec.Name(),
		"devices", rt.engine.Registry().Len(),
		"sd", rt.sd != nil,
	)
	return rt, nil
}

// Config returns the active configuration.
func (rt *Runtime) Config() *config.Config { return rt.cfg }

// Engine returns the bus engine.
func (rt *Runtime) Engine() *bus.Engine { return rt.engine }

// Fuji returns the control device.
func (rt *Runtime) Fuji() *fuji.Fuji { return rt.fuji }

// Printer returns the printer, or nil when disabled.
func (rt *Runtime) Printer() *printer.Printer { return rt.printer }

// Server returns the admin server.
func (rt *Runtime) Server() *api.Server { return rt.server }

// Tasks returns the deferred task queue.
func (rt *Runtime) Tasks() *tasks.Manager { return rt.tasks }

// Coordinator returns the restart coordinator.
func (rt *Runtime) Coordinator() *lifecycle.Coordinator { return rt.restart }

// Start starts the admin server. It fails with api.ErrNetworkDown when no
// network is up.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.server.Start(ctx)
}

// Scheduler returns the main loop over this runtime's services.
func (rt *Runtime) Scheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		Bus:             rt.engine,
		ControlPlane:    rt.server,
		Tasks:           rt.tasks,
		Restart:         rt.restart,
		Metrics:         metrics.NewSchedulerMetrics(),
		TickInterval:    rt.cfg.Bus.TickInterval,
		ShutdownTimeout: rt.cfg.ShutdownTimeout,
	})
}

// Close releases the slot store and the bus port. Devices are closed by
// the scheduler's shutdown.
func (rt *Runtime) Close() {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			logger.Warn("Failed to close slot store", logger.Err(err))
		}
		rt.store = nil
	}
	rt.closePort()
}

func (rt *Runtime) closePort() {
	c, ok := rt.port.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("Failed to close bus port", logger.Err(err))
	}
}
