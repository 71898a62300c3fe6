package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/dittonet/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
}

type fakeBus struct {
	rec      *recorder
	err      error
	shutdown int
	onTick   func()
}

func (b *fakeBus) Name() string { return "fake" }

func (b *fakeBus) Service(context.Context) error {
	b.rec.calls = append(b.rec.calls, "bus")
	if b.onTick != nil {
		b.onTick()
	}
	return b.err
}

func (b *fakeBus) Shutdown() {
	b.shutdown++
	b.rec.calls = append(b.rec.calls, "bus.shutdown")
}

type fakeControlPlane struct {
	rec     *recorder
	stopped int
}

func (c *fakeControlPlane) Service(context.Context) {
	c.rec.calls = append(c.rec.calls, "controlplane")
}

func (c *fakeControlPlane) Stop(context.Context) error {
	c.stopped++
	c.rec.calls = append(c.rec.calls, "controlplane.stop")
	return nil
}

type fakeTasks struct{ rec *recorder }

func (t *fakeTasks) Service(context.Context) {
	t.rec.calls = append(t.rec.calls, "tasks")
}

type fakeMetrics struct {
	ticks  int
	errors map[string]int
}

func (m *fakeMetrics) ObserveTick(time.Duration) { m.ticks++ }

func (m *fakeMetrics) RecordServiceError(s string) { m.errors[s]++ }

func newScheduler(restart Restarter) (*Scheduler, *recorder, *fakeBus, *fakeControlPlane, *fakeMetrics) {
	rec := &recorder{}
	bus := &fakeBus{rec: rec}
	cp := &fakeControlPlane{rec: rec}
	m := &fakeMetrics{errors: map[string]int{}}
	s := New(Config{
		Bus:          bus,
		ControlPlane: cp,
		Tasks:        &fakeTasks{rec: rec},
		Restart:      restart,
		Metrics:      m,
	})
	return s, rec, bus, cp, m
}

func TestTickOrder(t *testing.T) {
	s, rec, _, _, m := newScheduler(lifecycle.New())

	code, done, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
	assert.Zero(t, code)
	assert.Equal(t, []string{"bus", "controlplane", "tasks"}, rec.calls)
	assert.Equal(t, 1, m.ticks)
}

func TestRestartDueShutsDown(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	coord := lifecycle.New(lifecycle.WithClock(func() time.Time { return now }))
	s, rec, bus, cp, _ := newScheduler(coord)
	s.cfg.Now = func() time.Time { return now }
	ctx := context.Background()

	coord.Schedule(time.Second, lifecycle.ModeRespawn)
	_, done, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	now = now.Add(time.Second)
	rec.calls = nil
	code, done, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, lifecycle.ExitRespawn, code)
	assert.Equal(t, []string{"bus", "controlplane", "tasks", "controlplane.stop", "bus.shutdown"}, rec.calls)
	assert.Equal(t, 1, bus.shutdown)
	assert.Equal(t, 1, cp.stopped)

	_, done, _ = s.Tick(ctx)
	assert.True(t, done)
	assert.Equal(t, 1, bus.shutdown)
}

func TestReentrantTickRejected(t *testing.T) {
	s, _, bus, _, _ := newScheduler(nil)
	var inner error
	bus.onTick = func() { _, _, inner = s.Tick(context.Background()) }

	_, _, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrReentrant)
}

func TestBusErrorsAreCounted(t *testing.T) {
	s, _, bus, _, m := newScheduler(nil)
	bus.err = errors.New("port closed")

	_, done, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, m.errors["bus"])
}

func TestRunReturnsExitCode(t *testing.T) {
	coord := lifecycle.New()
	s, _, bus, _, _ := newScheduler(coord)
	ticks := 0
	bus.onTick = func() {
		ticks++
		if ticks == 3 {
			coord.Schedule(0, lifecycle.ModeTerminal)
		}
	}

	assert.Equal(t, lifecycle.ExitOK, s.Run(context.Background()))
	assert.Equal(t, 3, ticks)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, bus, cp, _ := newScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	bus.onTick = cancel

	assert.Equal(t, lifecycle.ExitOK, s.Run(ctx))
	assert.Equal(t, 1, bus.shutdown)
	assert.Equal(t, 1, cp.stopped)
}
