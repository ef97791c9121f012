package disk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IntelliTrade-io/IntelliTrade/internal/state"
)

type sampleRecord struct {
	Source  string    `json:"source"`
	SavedAt time.Time `json:"saved_at"`
	Count   int       `json:"count"`
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	want := sampleRecord{Source: "BLS", SavedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), Count: 42}
	require.NoError(t, store.Write(ctx, "lkg/bls", want))

	var got sampleRecord
	require.NoError(t, store.Read(ctx, "lkg/bls", &got))
	require.Equal(t, want, got)
}

func TestStoreReadMissingReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	var got sampleRecord
	err = store.Read(context.Background(), "lkg/missing", &got)
	require.True(t, errors.Is(err, state.ErrNotFound))
}

func TestStoreWriteReplacesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "health/counters", sampleRecord{Count: 1}))
	require.NoError(t, store.Write(ctx, "health/counters", sampleRecord{Count: 2}))

	var got sampleRecord
	require.NoError(t, store.Read(ctx, "health/counters", &got))
	require.Equal(t, 2, got.Count)

	// No temp files left behind after the rename.
	entries, err := os.ReadDir(filepath.Join(dir, "health"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "cache/abc", sampleRecord{Count: 7}))
	require.NoError(t, store.Delete(ctx, "cache/abc"))
	require.NoError(t, store.Delete(ctx, "cache/abc"))

	var got sampleRecord
	require.True(t, errors.Is(store.Read(ctx, "cache/abc", &got), state.ErrNotFound))
}

func TestStoreRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	err = store.Write(context.Background(), "../outside", sampleRecord{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes store root")
}
