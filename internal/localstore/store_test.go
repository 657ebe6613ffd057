package localstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	rev, err := s.Put(ctx, "tender-1", Document{"id": "tender-1"}, "2024-01-01T00:00:00Z", "")
	require.NoError(t, err)
	assert.NotEmpty(t, rev)

	rec, err := s.Get(ctx, "tender-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", rec.DateModified)
	assert.Equal(t, rev, rec.Rev)
}

func TestPutRejectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	rev, err := s.Put(ctx, "k", Document{"v": 1}, "t1", "")
	require.NoError(t, err)

	_, err = s.Put(ctx, "k", Document{"v": 2}, "t2", "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.Put(ctx, "k", Document{"v": 2}, "t2", rev)
	assert.NoError(t, err)
}

func TestGetNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDateModifiedMonotonicAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)
	rev, err := s.Put(ctx, "a", Document{}, "t1", "")
	require.NoError(t, err)
	_, err = s.Put(ctx, "a", Document{}, "t2", rev)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := New(dir)
	require.NoError(t, err)
	defer reopened.Close()

	dm, ok, err := reopened.DateModified(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t2", dm)
}

func TestSnapshotTruncatesWAL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)
	_, err = s.Put(ctx, "a", Document{}, "t1", "")
	require.NoError(t, err)
	require.NoError(t, s.Snapshot())
	require.NoError(t, s.Close())

	reopened, err := New(dir)
	require.NoError(t, err)
	defer reopened.Close()

	dm, ok, err := reopened.DateModified(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", dm)
}

func TestCreateAndExists(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.Exists(ctx, "edge_db")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Create(ctx, "edge_db"))

	ok, err = s.Exists(ctx, "edge_db")
	require.NoError(t, err)
	assert.True(t, ok)
}
