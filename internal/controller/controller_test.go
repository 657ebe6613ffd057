package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-bridge/internal/queue"
)

type fakePool struct {
	mu      sync.Mutex
	count   int
	spawns  atomic.Int32
	retires atomic.Int32
}

func (p *fakePool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *fakePool) SpawnOne(context.Context) {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	p.spawns.Add(1)
}

func (p *fakePool) ShutdownOne() {
	p.mu.Lock()
	if p.count > 0 {
		p.count--
	}
	p.mu.Unlock()
	p.retires.Add(1)
}

func TestControllerScalesUpOnHighFill(t *testing.T) {
	q := queue.New(10)
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		require.NoError(t, q.Put(ctx, queue.Item{ID: "x"}))
	}

	pool := &fakePool{count: 1}
	ctrl := &Controller{
		Queue: q,
		Pool:  pool,
		Cfg: Config{
			Tick:         10 * time.Millisecond,
			WorkersMin:   1,
			WorkersMax:   5,
			IncThreshold: 80,
			DecThreshold: 20,
		},
	}

	runCtx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	ctrl.Run(runCtx)

	assert.GreaterOrEqual(t, pool.spawns.Load(), int32(1))
	assert.LessOrEqual(t, pool.Count(), 5)
}

func TestControllerScalesDownOnLowFill(t *testing.T) {
	q := queue.New(10)
	pool := &fakePool{count: 3}
	ctrl := &Controller{
		Queue: q,
		Pool:  pool,
		Cfg: Config{
			Tick:         10 * time.Millisecond,
			WorkersMin:   1,
			WorkersMax:   5,
			IncThreshold: 80,
			DecThreshold: 20,
		},
	}

	runCtx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	ctrl.Run(runCtx)

	assert.GreaterOrEqual(t, pool.retires.Load(), int32(1))
	assert.GreaterOrEqual(t, pool.Count(), 1)
}

func TestControllerNeverExceedsWorkersMax(t *testing.T) {
	q := queue.New(10)
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		require.NoError(t, q.Put(ctx, queue.Item{ID: "x"}))
	}

	pool := &fakePool{count: 2}
	ctrl := &Controller{
		Queue: q,
		Pool:  pool,
		Cfg: Config{
			Tick:         5 * time.Millisecond,
			WorkersMin:   1,
			WorkersMax:   3,
			IncThreshold: 50,
			DecThreshold: 10,
		},
	}

	runCtx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	ctrl.Run(runCtx)

	assert.LessOrEqual(t, pool.Count(), 3)
}
