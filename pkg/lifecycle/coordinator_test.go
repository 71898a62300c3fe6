package lifecycle

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newCoordinator() (*Coordinator, *fakeClock, *[]int) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	var exits []int
	c := New(WithClock(clk.now), WithExit(func(code int) { exits = append(exits, code) }))
	return c, clk, &exits
}

func TestModeExitCodes(t *testing.T) {
	assert.Equal(t, 0, ModeTerminal.ExitCode())
	assert.Equal(t, 75, ModeRespawn.ExitCode())
	assert.Equal(t, "respawn", ModeRespawn.String())
}

func TestDueAfterDeadline(t *testing.T) {
	c, clk, _ := newCoordinator()

	_, ok := c.Due(clk.t)
	assert.False(t, ok)

	c.Schedule(2*time.Second, ModeRespawn)
	_, ok = c.Due(clk.t.Add(time.Second))
	assert.False(t, ok)

	mode, ok := c.Due(clk.t.Add(2 * time.Second))
	assert.True(t, ok)
	assert.Equal(t, ModeRespawn, mode)
}

func TestScheduleOnlyShortens(t *testing.T) {
	c, clk, _ := newCoordinator()

	c.Schedule(5*time.Second, ModeRespawn)
	c.Schedule(10*time.Second, ModeTerminal)
	mode, deadline, ok := c.Pending()
	assert.True(t, ok)
	assert.Equal(t, ModeRespawn, mode)
	assert.Equal(t, clk.t.Add(5*time.Second), deadline)

	c.Schedule(time.Second, ModeTerminal)
	mode, deadline, _ = c.Pending()
	assert.Equal(t, ModeRespawn, mode)
	assert.Equal(t, clk.t.Add(time.Second), deadline)
}

func TestScheduleNoneIsIgnored(t *testing.T) {
	c, _, _ := newCoordinator()
	c.Schedule(0, ModeNone)
	_, _, ok := c.Pending()
	assert.False(t, ok)
}

func TestSignalEscalation(t *testing.T) {
	c, clk, exits := newCoordinator()

	c.Signal(syscall.SIGINT)
	mode, ok := c.Due(clk.t)
	assert.True(t, ok)
	assert.Equal(t, ModeTerminal, mode)
	assert.Empty(t, *exits)

	c.Signal(syscall.SIGINT)
	assert.Empty(t, *exits)

	c.Signal(syscall.SIGTERM)
	assert.Equal(t, []int{ExitForced}, *exits)
}

func TestSignalOverridesPendingRespawn(t *testing.T) {
	c, clk, exits := newCoordinator()

	c.Schedule(500*time.Millisecond, ModeRespawn)
	c.Signal(syscall.SIGINT)

	mode, ok := c.Due(clk.t)
	assert.True(t, ok)
	assert.Equal(t, ModeTerminal, mode)
	assert.Equal(t, ExitOK, mode.ExitCode())
	assert.Empty(t, *exits)

	// A later respawn request does not undo the shutdown.
	c.Schedule(0, ModeRespawn)
	mode, _, _ = c.Pending()
	assert.Equal(t, ModeTerminal, mode)
}
