package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/resurgence-rp/radiorelay/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deletion_schedule.json")
	store, err := Open(path)
	require.NoError(t, err)
	return store, path
}

func newRecord(messageID string, due time.Time) *schedule.PendingDeletion {
	return &schedule.PendingDeletion{
		MessageID:     messageID,
		ChannelID:     "chan-1",
		CreatedAt:     due.Add(-24 * time.Hour),
		DueAt:         due,
		NextAttemptAt: due,
		Status:        schedule.StatusPending,
	}
}

func TestStore_InsertAndReload(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()

	rec := newRecord("msg-1", time.Now().Add(time.Hour))
	require.NoError(t, store.Insert(ctx, rec))

	// A fresh handle must see what the first one persisted.
	reopened, err := Open(path)
	require.NoError(t, err)

	all, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "msg-1", all[0].MessageID)
	assert.Equal(t, schedule.StatusPending, all[0].Status)
	assert.WithinDuration(t, rec.DueAt, all[0].DueAt, time.Second)
}

func TestStore_InsertDuplicate(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newRecord("msg-1", time.Now())))
	assert.ErrorIs(t, store.Insert(ctx, newRecord("msg-1", time.Now())), schedule.ErrDuplicate)
}

func TestStore_LoadDueOrderingAndFiltering(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, newRecord("late", now.Add(-time.Minute))))
	require.NoError(t, store.Insert(ctx, newRecord("early", now.Add(-time.Hour))))
	require.NoError(t, store.Insert(ctx, newRecord("future", now.Add(time.Hour))))

	deferred := newRecord("deferred", now.Add(-time.Hour))
	deferred.NextAttemptAt = now.Add(time.Minute)
	require.NoError(t, store.Insert(ctx, deferred))

	due, err := store.LoadDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].MessageID)
	assert.Equal(t, "late", due[1].MessageID)
}

func TestStore_MarkInFlightGate(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newRecord("msg-1", time.Now())))

	require.NoError(t, store.MarkInFlight(ctx, "msg-1"))
	assert.ErrorIs(t, store.MarkInFlight(ctx, "msg-1"), schedule.ErrNotPending)
	assert.ErrorIs(t, store.MarkInFlight(ctx, "missing"), schedule.ErrNotFound)
}

func TestStore_MarkInFlightConcurrentClaims(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newRecord("msg-1", time.Now())))

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.MarkInFlight(ctx, "msg-1"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1, "exactly one concurrent claim must win")
}

func TestStore_ReleaseIncrementsAttempts(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newRecord("msg-1", time.Now().Add(-time.Minute))))
	require.NoError(t, store.MarkInFlight(ctx, "msg-1"))

	next := time.Now().Add(10 * time.Second)
	require.NoError(t, store.Release(ctx, "msg-1", next))

	due, err := store.LoadDue(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, schedule.StatusPending, due[0].Status)
	assert.WithinDuration(t, next, due[0].NextAttemptAt, time.Second)
}

func TestStore_TerminalRemovalIdempotent(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newRecord("msg-1", time.Now())))
	require.NoError(t, store.Insert(ctx, newRecord("msg-2", time.Now())))

	require.NoError(t, store.Complete(ctx, "msg-1"))
	assert.ErrorIs(t, store.Complete(ctx, "msg-1"), schedule.ErrNotFound)

	require.NoError(t, store.FailPermanent(ctx, "msg-2"))
	assert.ErrorIs(t, store.FailPermanent(ctx, "msg-2"), schedule.ErrNotFound)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_LoadAllRecoversInFlight(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newRecord("msg-1", time.Now())))
	require.NoError(t, store.MarkInFlight(ctx, "msg-1"))

	// Simulate a crash mid-cycle: reopen from disk with the claim still set.
	crashed, err := Open(path)
	require.NoError(t, err)

	all, err := crashed.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, schedule.StatusPending, all[0].Status)

	// The normalization is persisted, not just in memory.
	reopened, err := Open(path)
	require.NoError(t, err)
	due, err := reopened.LoadDue(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestStore_IgnoresAbandonedTempFile(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newRecord("msg-1", time.Now())))

	// A crash between CreateTemp and Rename leaves a torn temp file behind;
	// it must not affect the next open.
	torn := filepath.Join(filepath.Dir(path), "deletion_schedule.json.tmp-123")
	require.NoError(t, os.WriteFile(torn, []byte(`{"msg-2": {"trunc`), 0o644))

	reopened, err := Open(path)
	require.NoError(t, err)
	all, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "msg-1", all[0].MessageID)
}

func TestOpen_MissingFile(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)

	all, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deletion_schedule.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.True(t, schedule.IsStorageError(err))
}
