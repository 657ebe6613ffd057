// Package worker implements the resource-item state machine: TAKE,
// ACQUIRE_CLIENT, FETCH, DECIDE, then WRITE/DROP/RETRY, then PACE.
//
// The same Worker type serves both the primary and the retry pool; what
// differs between them is only which queue a Worker reads from. Both
// kinds of worker write their retries to the same retry queue, so a
// primary-pool worker's failed item and a retry-pool worker's failed item
// end up in the same place.
package worker

import (
	"context"
	"errors"
	"time"

	"edge-bridge/internal/clientpool"
	"edge-bridge/internal/localstore"
	"edge-bridge/internal/queue"
	"edge-bridge/internal/stats"
	"edge-bridge/internal/upstreamclient"
)

// Config holds the per-worker tunables shared by every primary and retry
// worker, mirroring the Python bridge's single workers_config dict applied
// uniformly to both pools.
type Config struct {
	QueueTimeout               time.Duration
	FetchTimeout               time.Duration
	RetriesCount               int
	ClientIncStep              time.Duration
	ClientDecStep              time.Duration
	DropThresholdClientCookies int
	WorkerSleep                time.Duration
}

// Worker pulls ResourceRefs from Source, fetches the full document, and
// writes it to Store, re-enqueueing failures onto Retry.
type Worker struct {
	Source *queue.Queue
	Retry  *queue.Queue
	Pool   *clientpool.Pool
	Store  *localstore.Store
	Stats  *stats.Registry
	Cfg    Config

	// Done, once closed, tells Run to exit cleanly at the next TAKE
	// boundary rather than loop forever.
	Done <-chan struct{}
}

// Run drives the worker loop until ctx is done or Done is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-w.Done:
			return
		case <-ctx.Done():
			return
		default:
		}

		item, ok := w.Source.Take(ctx, w.Cfg.QueueTimeout)
		if !ok {
			continue
		}

		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) {
	client, err := w.Pool.Take(ctx)
	if err != nil {
		// Couldn't get a client (shutting down); the item is lost from
		// this pass but will reappear the next time the feed walks past
		// it, since emissions are allowed to repeat.
		return
	}

	fetchCtx := ctx
	var cancel context.CancelFunc
	if w.Cfg.FetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, w.Cfg.FetchTimeout)
		defer cancel()
	}

	doc, fetchErr := client.API.FetchResource(fetchCtx, item.ID)

	stale := client.ObserveCookie(client.API.LastCookie(), w.Cfg.DropThresholdClientCookies)

	switch {
	case fetchErr == nil:
		client.OnSuccess(w.Cfg.ClientDecStep)
		w.decide(ctx, item, doc)
	case errors.Is(fetchErr, upstreamclient.ErrNotFound):
		w.Stats.NotFound.Add(1)
		// dropped: the item is gone upstream, nothing to retry.
	case upstreamclient.IsTransient(fetchErr):
		client.OnFailure(w.Cfg.ClientIncStep)
		w.enqueueRetry(ctx, item)
	case errors.Is(fetchErr, upstreamclient.ErrAuth), errors.Is(fetchErr, upstreamclient.ErrMalformed):
		w.Stats.Exceptions.Add(1)
		// dropped: an operator problem or a body we can't trust, not
		// something retrying will fix on its own.
	default:
		client.OnFailure(w.Cfg.ClientIncStep)
		w.enqueueRetry(ctx, item)
	}

	client.Pace(ctx)
	if stale {
		if replacement, err := w.Pool.Retire(ctx, client); err == nil {
			w.Pool.Return(replacement)
			return
		}
	}
	w.Pool.Return(client)
}

func (w *Worker) decide(ctx context.Context, item queue.Item, doc upstreamclient.ResourceDocument) {
	fetched, _ := doc["dateModified"].(string)

	if fetched < item.DateModified {
		w.Stats.NotActual.Add(1)
		w.enqueueRetry(ctx, item)
		return
	}

	existing, err := w.Store.Get(ctx, item.ID)
	rev := ""
	stored := ""
	if err == nil {
		rev = existing.Rev
		stored = existing.DateModified
	} else if !errors.Is(err, localstore.ErrNotFound) {
		w.Stats.Exceptions.Add(1)
		w.enqueueRetry(ctx, item)
		return
	}

	if fetched <= stored {
		w.Stats.Skipped.Add(1)
		return
	}

	w.write(ctx, item, doc, fetched, rev)
}

func (w *Worker) write(ctx context.Context, item queue.Item, doc upstreamclient.ResourceDocument, fetched, rev string) {
	_, err := w.Store.Put(ctx, item.ID, localstore.Document(doc), fetched, rev)
	if err == nil {
		if rev == "" {
			w.Stats.Saved.Add(1)
		} else {
			w.Stats.Updated.Add(1)
		}
		return
	}

	if errors.Is(err, localstore.ErrConflict) {
		// One in-place retry: re-read the current revision and try once
		// more before giving up on this pass.
		existing, getErr := w.Store.Get(ctx, item.ID)
		if getErr == nil {
			if fetched <= existing.DateModified {
				w.Stats.Skipped.Add(1)
				return
			}
			if _, putErr := w.Store.Put(ctx, item.ID, localstore.Document(doc), fetched, existing.Rev); putErr == nil {
				w.Stats.Updated.Add(1)
				return
			}
		}
		w.enqueueRetry(ctx, item)
		return
	}

	w.enqueueRetry(ctx, item)
}

// enqueueRetry bumps the item's attempt counter and either drops it for
// good (attempts exhausted) or puts it on the retry queue.
func (w *Worker) enqueueRetry(ctx context.Context, item queue.Item) {
	item.Attempts++
	if w.Cfg.RetriesCount > 0 && item.Attempts >= w.Cfg.RetriesCount {
		w.Stats.Dropped.Add(1)
		return
	}

	w.Stats.Retried.Add(1)
	if w.Cfg.WorkerSleep > 0 {
		t := time.NewTimer(w.Cfg.WorkerSleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	_ = w.Retry.Put(ctx, item)
}
