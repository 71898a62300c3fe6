// Package scheduler drives every service of the process from one goroutine.
//
// Each tick gives the bus engine, the control plane and the deferred task
// queue one non-blocking turn, then checks whether a restart is due. No
// service may block for longer than its own bounded timeouts, so the bus
// never misses a command frame while the network is slow.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/lifecycle"
)

// ErrReentrant is returned when Tick is called while a tick is running.
var ErrReentrant = errors.New("scheduler: tick already running")

// Bus is the active bus engine.
type Bus interface {
	Name() string
	Service(ctx context.Context) error
	Shutdown()
}

// ControlPlane is the admin server.
type ControlPlane interface {
	Service(ctx context.Context)
	Stop(ctx context.Context) error
}

// Tasks is the deferred work queue.
type Tasks interface {
	Service(ctx context.Context)
}

// Restarter reports a due restart.
type Restarter interface {
	Due(now time.Time) (lifecycle.Mode, bool)
}

// Metrics observes scheduler activity. A nil Metrics disables collection.
type Metrics interface {
	ObserveTick(d time.Duration)
	RecordServiceError(service string)
}

// Config configures a Scheduler. Any service may be nil.
type Config struct {
	Bus          Bus
	ControlPlane ControlPlane
	Tasks        Tasks
	Restart      Restarter
	Metrics      Metrics

	// TickInterval is slept between ticks by Run. Zero spins.
	TickInterval time.Duration

	// ShutdownTimeout bounds stopping the control plane.
	ShutdownTimeout time.Duration

	// Now replaces time.Now.
	Now func() time.Time
}

// Scheduler is the cooperative main loop.
type Scheduler struct {
	cfg     Config
	running atomic.Bool
	stopped bool
}

func New(cfg Config) *Scheduler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Scheduler{cfg: cfg}
}

// Tick runs one round. When a restart is due it shuts everything down and
// returns done with the process exit code.
func (s *Scheduler) Tick(ctx context.Context) (exitCode int, done bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, false, ErrReentrant
	}
	defer s.running.Store(false)

	if s.stopped {
		return 0, true, nil
	}

	start := s.cfg.Now()

	if s.cfg.Bus != nil {
		if err := s.cfg.Bus.Service(ctx); err != nil {
			logger.DebugCtx(ctx, "Bus service error", logger.KeyBus, s.cfg.Bus.Name(), logger.KeyError, err)
			s.recordError("bus")
		}
	}
	if s.cfg.ControlPlane != nil {
		s.cfg.ControlPlane.Service(ctx)
	}
	if s.cfg.Tasks != nil {
		s.cfg.Tasks.Service(ctx)
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveTick(s.cfg.Now().Sub(start))
	}

	if s.cfg.Restart == nil {
		return 0, false, nil
	}
	mode, due := s.cfg.Restart.Due(s.cfg.Now())
	if !due {
		return 0, false, nil
	}
	s.shutdown(ctx, mode)
	return mode.ExitCode(), true, nil
}

// Run ticks until a restart completes and returns its exit code. A
// cancelled ctx is treated as a terminal shutdown.
func (s *Scheduler) Run(ctx context.Context) int {
	for {
		if ctx.Err() != nil {
			s.shutdown(context.WithoutCancel(ctx), lifecycle.ModeTerminal)
			return lifecycle.ExitOK
		}

		code, done, err := s.Tick(ctx)
		if err != nil {
			logger.Error("Scheduler tick failed", logger.KeyError, err)
			return lifecycle.ExitForced
		}
		if done {
			return code
		}

		if s.cfg.TickInterval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.TickInterval):
			}
		}
	}
}

func (s *Scheduler) shutdown(ctx context.Context, mode lifecycle.Mode) {
	if s.stopped {
		return
	}
	s.stopped = true
	logger.Info("Shutting down", logger.KeyMode, mode.String(), logger.KeyExitCode, mode.ExitCode())

	if s.cfg.ControlPlane != nil {
		stopCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		if err := s.cfg.ControlPlane.Stop(stopCtx); err != nil {
			logger.Warn("Control plane stop failed", logger.KeyError, err)
		}
		cancel()
	}
	if s.cfg.Bus != nil {
		s.cfg.Bus.Shutdown()
	}
}

func (s *Scheduler) recordError(service string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordServiceError(service)
	}
}
