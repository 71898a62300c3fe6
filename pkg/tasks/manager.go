// Package tasks runs deferred work on the scheduler loop.
//
// Tasks may be submitted from any goroutine. They only ever execute inside
// Manager.Service, which the scheduler calls once per tick, so task code
// can touch loop-owned state without locking.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittonet/internal/logger"
)

// Task is a unit of deferred work that may take several ticks.
type Task interface {
	Name() string

	// Step performs one bounded slice of work and reports whether the task
	// is finished. An error finishes the task.
	Step(ctx context.Context) (done bool, err error)
}

type entry struct {
	id   uuid.UUID
	task Task
	due  time.Time
}

// Manager queues tasks for the loop.
type Manager struct {
	mu      sync.Mutex
	pending []*entry
	now     func() time.Time
}

// NewManager creates an empty manager. now may be nil for time.Now.
func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{now: now}
}

// Submit queues t to start on the next round.
func (m *Manager) Submit(t Task) uuid.UUID {
	return m.submit(t, 0)
}

// SubmitFunc queues fn as a one-step task that becomes due after delay.
func (m *Manager) SubmitFunc(name string, after time.Duration, fn func(ctx context.Context) error) uuid.UUID {
	return m.submit(funcTask{name: name, fn: fn}, after)
}

func (m *Manager) submit(t Task, after time.Duration) uuid.UUID {
	e := &entry{id: uuid.New(), task: t, due: m.now().Add(after)}

	m.mu.Lock()
	m.pending = append(m.pending, e)
	m.mu.Unlock()

	logger.Debug("Task submitted", logger.KeyTask, t.Name(), "id", e.id.String(), logger.KeyDelay, after)
	return e.id
}

// Len reports how many tasks are queued.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Service runs one round: every due task gets one step and finished tasks
// are dropped. Tasks submitted during the round wait for the next one.
func (m *Manager) Service(ctx context.Context) {
	m.mu.Lock()
	round := m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(round) == 0 {
		return
	}

	now := m.now()
	keep := round[:0]
	for _, e := range round {
		if now.Before(e.due) {
			keep = append(keep, e)
			continue
		}
		done, err := e.task.Step(ctx)
		if err != nil {
			logger.WarnCtx(ctx, "Task failed", logger.KeyTask, e.task.Name(), "id", e.id.String(), logger.KeyError, err)
			continue
		}
		if !done {
			keep = append(keep, e)
		}
	}

	m.mu.Lock()
	m.pending = append(keep, m.pending...)
	m.mu.Unlock()
}

type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcTask) Name() string { return f.name }

func (f funcTask) Step(ctx context.Context) (bool, error) {
	return true, f.fn(ctx)
}
