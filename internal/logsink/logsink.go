// Package logsink defines the narrow interface the bridge uses to publish
// stats snapshots, plus a logrus-backed default implementation.
//
// The actual storage behind a production log sink (a database, a metrics
// pipeline) is an external collaborator, named here only as an interface;
// swapping it never touches the bridge core.
package logsink

import (
	"context"

	"github.com/sirupsen/logrus"

	"edge-bridge/internal/stats"
)

// LogSink receives stats snapshots. Save must never block the caller for
// long and must never propagate an error back into the pipeline — failures
// are the sink's own problem to log and swallow.
type LogSink interface {
	Save(ctx context.Context, snapshot stats.Snapshot)
}

// Logrus is the default LogSink: it writes each snapshot as one structured
// log line. It never returns an error; a panic while logging is recovered,
// logged at Error level, and otherwise ignored.
type Logrus struct {
	log *logrus.Entry
}

// NewLogrus builds a Logrus sink from a base logger.
func NewLogrus(base *logrus.Logger) *Logrus {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Logrus{log: base.WithField("component", "logsink")}
}

// Save logs snapshot as a structured entry. It always returns immediately;
// callers are expected to invoke it in its own goroutine per the "async,
// never blocks" contract, but Save itself does no further async dispatch so
// that unit tests can call it synchronously.
func (l *Logrus) Save(_ context.Context, s stats.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("log sink panicked while saving stats snapshot")
		}
	}()

	l.log.WithFields(logrus.Fields{
		"resource":            s.Resource,
		"saved":               s.Saved,
		"updated":             s.Updated,
		"dropped":             s.Dropped,
		"skipped":             s.Skipped,
		"retried":             s.Retried,
		"exceptions":          s.Exceptions,
		"not_found":           s.NotFound,
		"enqueued":            s.Enqueued,
		"not_actual":          s.NotActual,
		"primary_queue_depth": s.PrimaryQueueDepth,
		"retry_queue_depth":   s.RetryQueueDepth,
		"primary_workers":     s.PrimaryWorkers,
		"retry_workers":       s.RetryWorkers,
		"free_api_clients":    s.FreeAPIClients,
		"rss_bytes":           s.RSSBytes,
	}).Info("bridge stats tick")
}

// Async fires sink.Save in its own goroutine, matching the supervisor's
// requirement that publishing a snapshot never stalls the tick.
func Async(ctx context.Context, sink LogSink, s stats.Snapshot) {
	go sink.Save(ctx, s)
}
