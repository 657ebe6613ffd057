// Package bridge wires every other internal package into the running
// replication pipeline: changes-feed reader, staleness filter, primary
// and retry queues, worker pools, queue controller, supervisor, and the
// operator-facing health server.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"edge-bridge/internal/clientpool"
	"edge-bridge/internal/config"
	"edge-bridge/internal/controller"
	"edge-bridge/internal/feed"
	"edge-bridge/internal/healthserver"
	"edge-bridge/internal/localstore"
	"edge-bridge/internal/logsink"
	"edge-bridge/internal/queue"
	"edge-bridge/internal/staleness"
	"edge-bridge/internal/stats"
	"edge-bridge/internal/supervisor"
	"edge-bridge/internal/upstreamclient"
	"edge-bridge/internal/worker"
	"edge-bridge/internal/workerpool"
)

// Bridge is one fully-wired replication pipeline for a single resource.
type Bridge struct {
	cfg    *config.Config
	logger *logrus.Logger

	store *localstore.Store

	statsReg *stats.Registry
	metrics  *stats.Metrics
	sink     logsink.LogSink

	primaryQueue *queue.Queue
	retryQueue   *queue.Queue

	pool *clientpool.Pool

	primaryWorkers *workerpool.Pool
	retryWorkers   *workerpool.Pool

	ctrl *controller.Controller
	sup  *supervisor.Supervisor

	health     *http.Server
	feedClient *upstreamclient.Client
}

// Options holds what New needs beyond the parsed Config: where the local
// store keeps its data, and where the health server listens.
type Options struct {
	DataDir    string
	HealthAddr string
	Logger     *logrus.Logger
}

// New builds a Bridge ready to Run. It provisions the local database if
// it does not already exist, matching the original bridge's
// "create if not in server" startup check.
func New(cfg *config.Config, opts Options) (*Bridge, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	store, err := localstore.New(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("bridge: open local store: %w", err)
	}

	exists, err := store.Exists(context.Background(), cfg.PublicDB)
	if err != nil {
		return nil, fmt.Errorf("bridge: check database: %w", err)
	}
	if !exists {
		if err := store.Create(context.Background(), cfg.PublicDB); err != nil {
			return nil, fmt.Errorf("bridge: create database: %w", err)
		}
	}

	reg := stats.New()

	// Each Bridge gets its own Prometheus registry rather than registering
	// against the package-level DefaultRegisterer: a process (or a test
	// binary) can construct more than one Bridge, and MustRegister panics
	// on a duplicate collector name against a shared global registry.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics := stats.NewMetrics(promReg)

	primaryQueue := queue.New(cfg.PrimaryQueueSize)
	retryQueue := queue.New(cfg.RetryQueueSize)

	pool := clientpool.New(clientpool.Config{
		Host:            cfg.ResourcesAPIServer,
		Version:         cfg.ResourcesAPIVersion,
		Resource:        cfg.Resource,
		UserAgentPrefix: cfg.UserAgent,
		Timeout:         30 * time.Second,
		Ceiling:         cfg.WorkersMax,
	})

	feedClient := upstreamclient.New(cfg.ResourcesAPIServer, cfg.ResourcesAPIVersion, cfg.Resource, cfg.UserAgent+"/feed", 30*time.Second)

	workerCfg := worker.Config{
		QueueTimeout:               cfg.QueueTimeout,
		FetchTimeout:               cfg.RetryDefaultTimeout,
		RetriesCount:               cfg.RetriesCount,
		ClientIncStep:              cfg.ClientIncStep,
		ClientDecStep:              cfg.ClientDecStep,
		DropThresholdClientCookies: cfg.DropThresholdClientCookies,
		WorkerSleep:                cfg.WorkerSleep,
	}

	primaryWorkers := workerpool.New(func() *worker.Worker {
		return &worker.Worker{
			Source: primaryQueue,
			Retry:  retryQueue,
			Pool:   pool,
			Store:  store,
			Stats:  reg,
			Cfg:    workerCfg,
		}
	})

	retryWorkers := workerpool.New(func() *worker.Worker {
		return &worker.Worker{
			Source: retryQueue,
			Retry:  retryQueue,
			Pool:   pool,
			Store:  store,
			Stats:  reg,
			Cfg:    workerCfg,
		}
	})

	ctrl := &controller.Controller{
		Queue: primaryQueue,
		Pool:  primaryWorkers,
		Cfg: controller.Config{
			Tick:         cfg.QueuesControllerTick,
			WorkersMin:   cfg.WorkersMin,
			WorkersMax:   cfg.WorkersMax,
			IncThreshold: cfg.WorkersIncThreshold,
			DecThreshold: cfg.WorkersDecThreshold,
		},
		Logger: logger,
	}

	sink := logsink.NewLogrus(logger)

	b := &Bridge{
		cfg:            cfg,
		logger:         logger,
		store:          store,
		statsReg:       reg,
		metrics:        metrics,
		sink:           sink,
		primaryQueue:   primaryQueue,
		retryQueue:     retryQueue,
		pool:           pool,
		primaryWorkers: primaryWorkers,
		retryWorkers:   retryWorkers,
		ctrl:           ctrl,
		feedClient:     feedClient,
	}

	b.sup = &supervisor.Supervisor{
		Cfg: supervisor.Config{
			WatchInterval:     cfg.WatchInterval,
			FeedConcurrency:   cfg.FilterWorkersCount,
			PrimaryWorkersMin: cfg.WorkersMin,
			RetryWorkersMin:   cfg.RetryWorkersMin,
			Resource:          cfg.Resource,
		},
		Stats:       reg,
		Metrics:     metrics,
		Sink:        sink,
		Primary:     primaryQueue,
		RetryQ:      retryQueue,
		PrimaryPool: primaryWorkers,
		RetryPool:   retryWorkers,
		ClientPool:  pool,
		RunFeed:     b.runFeed,
	}

	if opts.HealthAddr != "" {
		router := healthserver.New(logger, b.liveness, promReg)
		b.health = &http.Server{
			Addr:    opts.HealthAddr,
			Handler: router,
		}
	}

	return b, nil
}

// liveness reports whether the supervisor appears to be ticking: the
// primary queue isn't pinned at capacity with zero active workers.
func (b *Bridge) liveness() (bool, string) {
	if b.primaryQueue.Fill() >= 100 && b.primaryWorkers.Count() == 0 {
		return false, "primary queue full with no active workers"
	}
	return true, ""
}

// runFeed walks the changes feed once to exhaustion, admitting items
// through the staleness filter and enqueueing them on the primary queue.
// It returns when the feed reports no more data or ctx is done; the
// supervisor calls it again on a later tick.
func (b *Bridge) runFeed(ctx context.Context) {
	reader := feed.New(b.feedClient, b.cfg.ResourceItemsLimit)
	filter := staleness.New(b.store, b.statsReg)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		page, err := reader.Next(ctx)
		if err != nil {
			b.logger.WithError(err).Warn("feed reader stopped")
			return
		}

		for _, ref := range page.Refs {
			if !filter.Admit(ctx, ref.ID, ref.DateModified) {
				continue
			}
			if err := b.primaryQueue.Put(ctx, queue.Item{ID: ref.ID, DateModified: ref.DateModified}); err != nil {
				return
			}
			b.statsReg.Enqueued.Add(1)
		}

		if reader.Exhausted() {
			return
		}
	}
}

// Run starts the controller, supervisor, and health server, and blocks
// until ctx is done, at which point it performs a cooperative shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	b.primaryWorkers.TopUp(ctx, b.cfg.WorkersMin)
	b.retryWorkers.TopUp(ctx, b.cfg.RetryWorkersMin)

	go b.ctrl.Run(ctx)
	go b.sup.Run(ctx)

	if b.health != nil {
		go func() {
			if err := b.health.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				b.logger.WithError(err).Error("health server stopped")
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if b.health != nil {
		_ = b.health.Shutdown(shutdownCtx)
	}

	if err := b.store.Snapshot(); err != nil {
		b.logger.WithError(err).Warn("final snapshot failed")
	}
	if err := b.store.Close(); err != nil {
		return fmt.Errorf("bridge: close store: %w", err)
	}
	return nil
}
