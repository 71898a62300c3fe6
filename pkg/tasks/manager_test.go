package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countdown struct {
	steps int
	runs  int
}

func (c *countdown) Name() string { return "countdown" }

func (c *countdown) Step(context.Context) (bool, error) {
	c.runs++
	return c.runs >= c.steps, nil
}

func TestMultiStepTask(t *testing.T) {
	m := NewManager(nil)
	task := &countdown{steps: 3}
	m.Submit(task)
	ctx := context.Background()

	m.Service(ctx)
	m.Service(ctx)
	assert.Equal(t, 2, task.runs)
	assert.Equal(t, 1, m.Len())

	m.Service(ctx)
	assert.Equal(t, 3, task.runs)
	assert.Zero(t, m.Len())
}

func TestSubmitFuncHonoursDelay(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(func() time.Time { return now })
	ran := 0
	m.SubmitFunc("later", time.Second, func(context.Context) error { ran++; return nil })
	ctx := context.Background()

	m.Service(ctx)
	assert.Zero(t, ran)

	now = now.Add(time.Second)
	m.Service(ctx)
	assert.Equal(t, 1, ran)
	assert.Zero(t, m.Len())
}

func TestFailedTaskIsDropped(t *testing.T) {
	m := NewManager(nil)
	m.SubmitFunc("boom", 0, func(context.Context) error { return errors.New("boom") })

	m.Service(context.Background())
	assert.Zero(t, m.Len())
}

func TestSubmitDuringServiceWaitsForNextRound(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()
	inner := 0
	m.SubmitFunc("outer", 0, func(context.Context) error {
		m.SubmitFunc("inner", 0, func(context.Context) error { inner++; return nil })
		return nil
	})

	m.Service(ctx)
	assert.Zero(t, inner)
	m.Service(ctx)
	assert.Equal(t, 1, inner)
}

func TestConcurrentSubmit(t *testing.T) {
	m := NewManager(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.SubmitFunc("n", 0, func(context.Context) error { return nil })
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, m.Len())

	m.Service(context.Background())
	assert.Zero(t, m.Len())
}
