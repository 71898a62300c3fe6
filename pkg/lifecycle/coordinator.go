// Package lifecycle coordinates deferred process restarts and shutdowns.
//
// A restart is scheduled with a delay and a mode. The scheduler loop polls
// Due and, once the deadline passes, tears the process down and exits with
// the mode's exit code. A supervisor that sees ExitRespawn starts the
// process again.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/marmos91/dittonet/internal/logger"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitForced  = 1
	ExitRespawn = 75
)

// ForceAfterSignals is the number of interrupts that forces an immediate
// exit when the graceful shutdown does not finish.
const ForceAfterSignals = 3

// Mode is the kind of shutdown a restart performs.
type Mode uint8

const (
	ModeNone Mode = iota
	// ModeTerminal exits for good.
	ModeTerminal
	// ModeRespawn exits asking the supervisor to start again.
	ModeRespawn
)

func (m Mode) String() string {
	switch m {
	case ModeTerminal:
		return "terminal"
	case ModeRespawn:
		return "respawn"
	default:
		return "none"
	}
}

// ExitCode is the process exit code for m.
func (m Mode) ExitCode() int {
	if m == ModeRespawn {
		return ExitRespawn
	}
	return ExitOK
}

// Coordinator holds at most one pending restart. Once scheduled, a restart
// cannot be cancelled; a later Schedule can only bring the deadline
// forward. Only an interrupt signal changes the mode of a pending restart.
// Safe for concurrent use.
type Coordinator struct {
	mu       sync.Mutex
	mode     Mode
	deadline time.Time

	now     func() time.Time
	exit    func(int)
	signals atomic.Int32
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithExit replaces os.Exit for the forced exit path.
func WithExit(exit func(int)) Option {
	return func(c *Coordinator) { c.exit = exit }
}

func New(opts ...Option) *Coordinator {
	c := &Coordinator{now: time.Now, exit: os.Exit}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Schedule requests a shutdown in mode after delay.
func (c *Coordinator) Schedule(delay time.Duration, mode Mode) {
	if mode == ModeNone {
		return
	}
	deadline := c.now().Add(delay)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeNone {
		if deadline.Before(c.deadline) {
			c.deadline = deadline
			logger.Debug("Restart brought forward", logger.KeyMode, c.mode.String(), logger.KeyDelay, delay)
		}
		return
	}
	c.mode = mode
	c.deadline = deadline
	logger.Info("Restart scheduled", logger.KeyMode, mode.String(), logger.KeyDelay, delay)
}

// terminate makes the pending shutdown terminal and due now.
func (c *Coordinator) terminate() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeRespawn {
		logger.Info("Pending respawn replaced by shutdown")
	}
	c.mode = ModeTerminal
	if c.deadline.IsZero() || now.Before(c.deadline) {
		c.deadline = now
	}
}

// Pending reports the scheduled restart, if any.
func (c *Coordinator) Pending() (Mode, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.deadline, c.mode != ModeNone
}

// Due reports the pending mode once its deadline has passed at now.
func (c *Coordinator) Due(now time.Time) (Mode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeNone || now.Before(c.deadline) {
		return ModeNone, false
	}
	return c.mode, true
}

// Signal records one interrupt. The first requests an immediate terminal
// shutdown, replacing a pending respawn so the supervisor does not start
// the process again. Reaching ForceAfterSignals exits the process at once.
func (c *Coordinator) Signal(sig os.Signal) {
	n := c.signals.Add(1)
	logger.Info("Interrupt received", logger.KeySignal, sig.String(), "count", n)

	if n >= ForceAfterSignals {
		logger.Warn("Forcing exit", logger.KeyExitCode, ExitForced)
		c.exit(ExitForced)
		return
	}
	if n == 1 {
		c.terminate()
	}
}

// Watch feeds SIGINT and SIGTERM into Signal until ctx is done.
func (c *Coordinator) Watch(ctx context.Context) {
	ch := make(chan os.Signal, ForceAfterSignals)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				c.Signal(sig)
			}
		}
	}()
}
