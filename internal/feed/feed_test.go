package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-bridge/internal/upstreamclient"
)

func TestNextParsesPageAndAdvancesOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "" {
			w.Write([]byte(`{"data":[{"id":"a","dateModified":"t1"}],"next_page":{"offset":"o1"}}`))
			return
		}
		w.Write([]byte(`{"data":[],"next_page":{"offset":""}}`))
	}))
	defer srv.Close()

	client := upstreamclient.New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	reader := New(client, 100)

	page, err := reader.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Refs, 1)
	assert.Equal(t, "a", page.Refs[0].ID)
	assert.Equal(t, "o1", page.NextOffset)
	assert.False(t, reader.Exhausted())

	page, err = reader.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, page.Refs)
	assert.True(t, reader.Exhausted())
}

func TestNextRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":[{"id":"a","dateModified":"t1"}],"next_page":{"offset":""}}`))
	}))
	defer srv.Close()

	client := upstreamclient.New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	reader := New(client, 100)
	reader.backoffBase = time.Millisecond
	reader.backoffMax = 5 * time.Millisecond

	page, err := reader.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Refs, 1)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestNextReturnsFatalOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := upstreamclient.New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	reader := New(client, 100)

	_, err := reader.Next(context.Background())
	assert.ErrorIs(t, err, ErrFatal)
}

func TestNextReturnsFatalOnAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := upstreamclient.New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	reader := New(client, 100)

	_, err := reader.Next(context.Background())
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, upstreamclient.ErrAuth)
}

func TestNextRespectsContextCancellationDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := upstreamclient.New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	reader := New(client, 100)
	reader.backoffBase = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := reader.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
