// Package controller scales the primary worker pool up or down based on
// how full the primary queue is, one step per tick, never past the
// configured [workers_min, workers_max] bounds.
package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"edge-bridge/internal/queue"
)

// Config bounds the controller's scaling decisions.
type Config struct {
	Tick         time.Duration
	WorkersMin   int
	WorkersMax   int
	IncThreshold float64
	DecThreshold float64
}

// Pool is the subset of a worker pool the controller drives: spawning a
// worker bound to the primary queue, or telling the newest one to stop.
type Pool interface {
	Count() int
	SpawnOne(ctx context.Context)
	ShutdownOne()
}

// Controller runs the fixed-tick scaling loop over a single queue/pool
// pair, matching queues_controller in the original bridge.
type Controller struct {
	Queue  *queue.Queue
	Pool   Pool
	Cfg    Config
	Logger *logrus.Logger
}

// Run ticks until ctx is done, scaling by at most one worker per tick.
func (c *Controller) Run(ctx context.Context) {
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ticker := time.NewTicker(c.Cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fill := c.Queue.Fill()
		count := c.Pool.Count()

		switch {
		case fill > c.Cfg.IncThreshold && count < c.Cfg.WorkersMax:
			c.Pool.SpawnOne(ctx)
		case fill < c.Cfg.DecThreshold && count > c.Cfg.WorkersMin:
			c.Pool.ShutdownOne()
		}

		logger.WithFields(logrus.Fields{
			"percent": fill,
			"workers": c.Pool.Count(),
		}).Info("queue fill")
	}
}
