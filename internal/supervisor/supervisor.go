// Package supervisor runs the bridge's periodic liveness tick: snapshot
// stats, hand them to the log sink, top up worker pools to their
// minimums, and keep feed readers running. It is the only place that
// re-hydrates workers lost to an uncaught failure; workers never
// self-restart.
package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"edge-bridge/internal/logsink"
	"edge-bridge/internal/queue"
	"edge-bridge/internal/stats"
)

// Pool is the subset of workerpool.Pool the supervisor needs to top up.
type Pool interface {
	Count() int
	TopUp(ctx context.Context, min int)
}

// ClientPool is the subset of clientpool.Pool the supervisor reports on:
// how many clients are sitting idle, for the free_api_clients stat.
type ClientPool interface {
	Size() int
}

// FeedRunner runs one feed-reader task. The supervisor calls it up to
// Config.FeedConcurrency times whenever fewer than that many are believed
// running; each call blocks for the task's lifetime.
type FeedRunner func(ctx context.Context)

// Config tunes the supervisor's tick behavior.
type Config struct {
	WatchInterval     time.Duration
	FeedConcurrency   int
	PrimaryWorkersMin int
	RetryWorkersMin   int
	Resource          string
}

// Supervisor owns the tick loop.
type Supervisor struct {
	Cfg     Config
	Stats   *stats.Registry
	Metrics *stats.Metrics
	Sink    logsink.LogSink
	Primary *queue.Queue
	RetryQ  *queue.Queue

	PrimaryPool Pool
	RetryPool   Pool
	ClientPool  ClientPool

	RunFeed FeedRunner

	runningFeeds atomic.Int32
}

// Run ticks every WatchInterval until ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Cfg.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.tick(ctx)
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	snap := s.Stats.Reset(s.Cfg.Resource)
	snap.PrimaryQueueDepth = s.Primary.Depth()
	snap.RetryQueueDepth = s.RetryQ.Depth()
	if s.PrimaryPool != nil {
		snap.PrimaryWorkers = s.PrimaryPool.Count()
	}
	if s.RetryPool != nil {
		snap.RetryWorkers = s.RetryPool.Count()
	}
	if s.ClientPool != nil {
		snap.FreeAPIClients = s.ClientPool.Size()
	}

	logsink.Async(ctx, s.Sink, snap)
	if s.Metrics != nil {
		s.Metrics.Observe(snap)
	}

	for int(s.runningFeeds.Load()) < s.Cfg.FeedConcurrency {
		s.runningFeeds.Add(1)
		go func() {
			defer s.runningFeeds.Add(-1)
			s.RunFeed(ctx)
		}()
	}

	if s.PrimaryPool != nil {
		s.PrimaryPool.TopUp(ctx, s.Cfg.PrimaryWorkersMin)
	}
	if s.RetryPool != nil {
		s.RetryPool.TopUp(ctx, s.Cfg.RetryWorkersMin)
	}
}
