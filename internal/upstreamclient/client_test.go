package upstreamclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchChangesParsesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2.5/tenders", r.URL.Path)
		assert.Equal(t, "_all_", r.URL.Query().Get("mode"))
		w.Write([]byte(`{"data":[{"id":"a","dateModified":"t1"}],"next_page":{"offset":"o1"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	page, err := c.FetchChanges(context.Background(), 100, "")
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "a", page.Data[0].ID)
	assert.Equal(t, "o1", page.NextPage.Offset)
}

func TestFetchResourceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	_, err := c.FetchResource(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchResourceServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	_, err := c.FetchResource(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestFetchResourceAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	_, err := c.FetchResource(context.Background(), "x")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestFetchResourceMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	_, err := c.FetchResource(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFetchResourceReturnsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"a","dateModified":"t1","title":"x"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "2.5", "tenders", "test-agent", time.Second)
	doc, err := c.FetchResource(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "a", doc["id"])
	assert.Equal(t, "t1", doc["dateModified"])
}
