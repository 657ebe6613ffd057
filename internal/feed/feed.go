// Package feed walks the upstream changes feed, producing ResourceRefs
// for the staleness filter to admit or drop.
//
// The Reader is a lazy, resumable sequence: it never terminates on its
// own when the server reports no more data, it simply returns control to
// the caller so a supervisor tick can decide when to call it again. Cursor
// state lives only in memory — restarting the process restarts from the
// beginning, which is acceptable since repeat emissions are tolerated
// downstream (see the staleness filter). The cursor is taken from each
// page as returned, so once a page comes back with no forward cursor the
// next call to Next starts again from the first page.
package feed

import (
	"context"
	"errors"
	"time"

	"edge-bridge/internal/upstreamclient"
)

// ErrFatal is returned by Next for any non-transient failure: a malformed
// response or a 4xx other than 429, a 404 included — the caller should
// stop this reader and let the supervisor restart it after one watch
// interval.
var ErrFatal = errors.New("feed: fatal upstream response")

// Page is one admitted page of the feed: the refs plus whether the feed
// reported more data is available immediately (NextOffset non-empty).
type Page struct {
	Refs       []upstreamclient.ResourceRef
	NextOffset string
}

// Reader walks the "all items" feed from wherever it last left off.
type Reader struct {
	client *upstreamclient.Client
	limit  int
	offset string

	backoffBase time.Duration
	backoffMax  time.Duration
}

// New creates a Reader bound to client, requesting pages of up to limit
// items at a time.
func New(client *upstreamclient.Client, limit int) *Reader {
	return &Reader{
		client:      client,
		limit:       limit,
		backoffBase: 200 * time.Millisecond,
		backoffMax:  30 * time.Second,
	}
}

// Next fetches the next page, resuming from the cursor left by the
// previous call. On a transient upstream failure it retries internally
// with bounded exponential backoff until it succeeds or ctx is done, in
// which case ctx.Err() is returned. A non-retryable failure (malformed
// body, any 4xx other than 429) returns ErrFatal joined with the
// underlying cause; the
// caller should stop calling Next on this Reader.
func (r *Reader) Next(ctx context.Context) (Page, error) {
	backoff := r.backoffBase

	for {
		page, err := r.client.FetchChanges(ctx, r.limit, r.offset)
		if err == nil {
			r.offset = page.NextPage.Offset
			return Page{Refs: page.Data, NextOffset: page.NextPage.Offset}, nil
		}

		if upstreamclient.IsTransient(err) {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Page{}, ctx.Err()
			}
			backoff *= 2
			if backoff > r.backoffMax {
				backoff = r.backoffMax
			}
			continue
		}

		return Page{}, errors.Join(ErrFatal, err)
	}
}

// Exhausted reports whether the most recently fetched page left no
// forward cursor — the reader has caught up to the head of the feed and
// the caller should wait before calling Next again.
func (r *Reader) Exhausted() bool {
	return r.offset == ""
}
