package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockRunner struct {
	mu        sync.Mutex
	runFunc   func(ctx context.Context, scope Scope) (*RunSummary, error)
	callCount int
	lastScope Scope
}

func (m *mockRunner) Run(ctx context.Context, scope Scope) (*RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.lastScope = scope
	if m.runFunc != nil {
		return m.runFunc(ctx, scope)
	}
	return &RunSummary{Attempted: 1, Successes: []string{"USD@tgju"}}, nil
}

func (m *mockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *mockRunner) LastScope() Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastScope
}

func TestScheduler_Start(t *testing.T) {
	t.Run("Runs on interval", func(t *testing.T) {
		runner := &mockRunner{}
		scheduler := NewScheduler(runner, nil, 10*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go scheduler.Start(ctx)
		time.Sleep(50 * time.Millisecond)
		scheduler.Stop()

		assert.GreaterOrEqual(t, runner.CallCount(), 3)
		assert.True(t, runner.LastScope().Instrument.All, "scheduled runs cover every instrument")
	})

	t.Run("Handles run error gracefully", func(t *testing.T) {
		runner := &mockRunner{
			runFunc: func(context.Context, Scope) (*RunSummary, error) {
				return nil, errors.New("run failed")
			},
		}
		scheduler := NewScheduler(runner, nil, 10*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go scheduler.Start(ctx)
		time.Sleep(30 * time.Millisecond)
		scheduler.Stop()

		assert.GreaterOrEqual(t, runner.CallCount(), 1)
	})

	t.Run("Stops on context cancellation", func(t *testing.T) {
		runner := &mockRunner{}
		scheduler := NewScheduler(runner, nil, 100*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())

		go scheduler.Start(ctx)
		time.Sleep(20 * time.Millisecond)
		cancel()
	})
}
