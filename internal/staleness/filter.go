// Package staleness implements the admission gate between the changes
// feed and the primary queue: an advertised ResourceRef is only worth a
// full fetch if it is newer than whatever the local store already has.
package staleness

import (
	"context"

	"edge-bridge/internal/stats"
)

// Store is the subset of localstore.Store the filter needs. err is
// non-nil only for a genuine store failure (not "no local record") — a
// remote or flaky backing store can fail a read independently of whether
// the id exists.
type Store interface {
	DateModified(ctx context.Context, id string) (dateModified string, ok bool, err error)
}

// Filter decides whether an advertised (id, dateModified) should be
// enqueued for a fetch.
type Filter struct {
	store Store
	stats *stats.Registry
}

// New creates a Filter backed by store, bumping counters on reg.
func New(store Store, reg *stats.Registry) *Filter {
	return &Filter{store: store, stats: reg}
}

// Admit reports whether ref should be enqueued. A missing local record
// always admits; a stored dateModified older than ref's admits; anything
// else is dropped and counted as skipped. A store error fails open —
// admit and bump Exceptions — so a local outage can never stall the
// pipeline, at the cost of a redundant fetch.
func (f *Filter) Admit(ctx context.Context, id, dateModified string) bool {
	stored, ok, err := f.store.DateModified(ctx, id)
	if err != nil {
		f.stats.Exceptions.Add(1)
		return true
	}
	if !ok {
		return true
	}
	if stored < dateModified {
		return true
	}
	f.stats.Skipped.Add(1)
	return false
}
