package stats

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the registry's values as Prometheus gauges/counters for
// the debug HTTP server's /metrics endpoint. Values change only when
// Observe folds in a Snapshot, once per supervisor tick, so a scrape
// reports the state as of the last tick.
type Metrics struct {
	saved      prometheus.Counter
	updated    prometheus.Counter
	dropped    prometheus.Counter
	skipped    prometheus.Counter
	retried    prometheus.Counter
	exceptions prometheus.Counter
	notFound   prometheus.Counter

	primaryQueueDepth prometheus.Gauge
	retryQueueDepth   prometheus.Gauge
	primaryWorkers    prometheus.Gauge
	retryWorkers      prometheus.Gauge
	freeAPIClients    prometheus.Gauge
	rssBytes          prometheus.Gauge
}

// NewMetrics registers the bridge's gauges/counters on reg. Callers pass a
// registry private to one Bridge (prometheus.NewRegistry()), not the
// package-level prometheus.DefaultRegisterer — a process can run more than
// one Bridge (tests spin up several in the same binary), and registering
// the same collector names twice against a shared global registry panics.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		saved:      prometheus.NewCounter(prometheus.CounterOpts{Name: "edge_bridge_saved_total", Help: "Documents inserted into the local store."}),
		updated:    prometheus.NewCounter(prometheus.CounterOpts{Name: "edge_bridge_updated_total", Help: "Documents updated in the local store."}),
		dropped:    prometheus.NewCounter(prometheus.CounterOpts{Name: "edge_bridge_dropped_total", Help: "Items dropped after exhausting retries."}),
		skipped:    prometheus.NewCounter(prometheus.CounterOpts{Name: "edge_bridge_skipped_total", Help: "Items skipped by the staleness filter or DECIDE step."}),
		retried:    prometheus.NewCounter(prometheus.CounterOpts{Name: "edge_bridge_retried_total", Help: "Items routed to the retry queue."}),
		exceptions: prometheus.NewCounter(prometheus.CounterOpts{Name: "edge_bridge_exceptions_total", Help: "Unexpected errors encountered while processing items."}),
		notFound:   prometheus.NewCounter(prometheus.CounterOpts{Name: "edge_bridge_not_found_total", Help: "Items the upstream reported as 404."}),

		primaryQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{Name: "edge_bridge_primary_queue_depth", Help: "Current depth of the primary resource items queue."}),
		retryQueueDepth:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "edge_bridge_retry_queue_depth", Help: "Current depth of the retry queue."}),
		primaryWorkers:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "edge_bridge_primary_workers", Help: "Active primary resource workers."}),
		retryWorkers:      prometheus.NewGauge(prometheus.GaugeOpts{Name: "edge_bridge_retry_workers", Help: "Active retry resource workers."}),
		freeAPIClients:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "edge_bridge_free_api_clients", Help: "Idle API clients sitting in the pool."}),
		rssBytes:          prometheus.NewGauge(prometheus.GaugeOpts{Name: "edge_bridge_process_rss_bytes", Help: "Process memory reported at the last tick."}),
	}

	reg.MustRegister(
		m.saved, m.updated, m.dropped, m.skipped, m.retried, m.exceptions, m.notFound,
		m.primaryQueueDepth, m.retryQueueDepth, m.primaryWorkers, m.retryWorkers,
		m.freeAPIClients, m.rssBytes,
	)
	return m
}

// Observe folds a Snapshot into the registered metrics.
func (m *Metrics) Observe(s Snapshot) {
	m.saved.Add(float64(s.Saved))
	m.updated.Add(float64(s.Updated))
	m.dropped.Add(float64(s.Dropped))
	m.skipped.Add(float64(s.Skipped))
	m.retried.Add(float64(s.Retried))
	m.exceptions.Add(float64(s.Exceptions))
	m.notFound.Add(float64(s.NotFound))

	m.primaryQueueDepth.Set(float64(s.PrimaryQueueDepth))
	m.retryQueueDepth.Set(float64(s.RetryQueueDepth))
	m.primaryWorkers.Set(float64(s.PrimaryWorkers))
	m.retryWorkers.Set(float64(s.RetryWorkers))
	m.freeAPIClients.Set(float64(s.FreeAPIClients))
	m.rssBytes.Set(float64(s.RSSBytes))
}
