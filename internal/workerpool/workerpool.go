// Package workerpool manages a dynamically-sized set of resource workers
// bound to one queue: the controller and supervisor both need to spawn
// and retire individual workers without tearing down the whole pipeline.
package workerpool

import (
	"context"
	"sync"

	"edge-bridge/internal/worker"
)

// Factory builds a fresh *worker.Worker bound to this pool's queue. Done
// is set by the pool before Run is called; factory implementations
// should not set it themselves.
type Factory func() *worker.Worker

// Pool tracks the set of currently-running workers for one queue.
type Pool struct {
	factory Factory

	mu      sync.Mutex
	workers []*managedWorker
}

type managedWorker struct {
	done chan struct{}
}

// New creates an empty Pool; workers are spawned via SpawnOne/TopUp.
func New(factory Factory) *Pool {
	return &Pool{factory: factory}
}

// Count reports the number of currently-running workers.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// SpawnOne starts one additional worker, running until ctx is done or it
// is told to shut down via ShutdownOne.
func (p *Pool) SpawnOne(ctx context.Context) {
	w := p.factory()
	mw := &managedWorker{done: make(chan struct{})}
	w.Done = mw.done

	p.mu.Lock()
	p.workers = append(p.workers, mw)
	p.mu.Unlock()

	go func() {
		w.Run(ctx)
		p.remove(mw)
	}()
}

// ShutdownOne signals the most recently spawned worker to stop at its
// next TAKE boundary. A no-op if the pool is empty.
func (p *Pool) ShutdownOne() {
	p.mu.Lock()
	if len(p.workers) == 0 {
		p.mu.Unlock()
		return
	}
	mw := p.workers[len(p.workers)-1]
	p.workers = p.workers[:len(p.workers)-1]
	p.mu.Unlock()

	close(mw.done)
}

// TopUp spawns workers until Count reaches min.
func (p *Pool) TopUp(ctx context.Context, min int) {
	for p.Count() < min {
		p.SpawnOne(ctx)
	}
}

func (p *Pool) remove(target *managedWorker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, mw := range p.workers {
		if mw == target {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			return
		}
	}
}
