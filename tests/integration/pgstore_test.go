//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/resurgence-rp/radiorelay/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRecord(messageID string, due time.Time) *schedule.PendingDeletion {
	return &schedule.PendingDeletion{
		MessageID:     messageID,
		ChannelID:     "chan-1",
		CreatedAt:     due.Add(-24 * time.Hour),
		DueAt:         due,
		NextAttemptAt: due,
		Status:        schedule.StatusPending,
	}
}

func TestPGStore_InsertAndLoadDue(t *testing.T) {
	resetSchedule(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-late", now.Add(-time.Minute))))
	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-early", now.Add(-time.Hour))))
	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-future", now.Add(time.Hour))))

	due, err := testStore.LoadDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "msg-early", due[0].MessageID)
	assert.Equal(t, "msg-late", due[1].MessageID)
}

func TestPGStore_InsertDuplicate(t *testing.T) {
	resetSchedule(t)
	ctx := context.Background()

	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-1", time.Now().UTC())))
	err := testStore.Insert(ctx, pendingRecord("msg-1", time.Now().UTC()))
	assert.ErrorIs(t, err, schedule.ErrDuplicate)
}

func TestPGStore_MarkInFlightGate(t *testing.T) {
	resetSchedule(t)
	ctx := context.Background()

	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-1", time.Now().UTC())))

	require.NoError(t, testStore.MarkInFlight(ctx, "msg-1"))
	assert.ErrorIs(t, testStore.MarkInFlight(ctx, "msg-1"), schedule.ErrNotPending)
	assert.ErrorIs(t, testStore.MarkInFlight(ctx, "missing"), schedule.ErrNotFound)
}

func TestPGStore_ConcurrentClaims(t *testing.T) {
	resetSchedule(t)
	ctx := context.Background()

	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-1", time.Now().UTC())))

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := testStore.MarkInFlight(ctx, "msg-1"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1, "exactly one concurrent claim must win")
}

func TestPGStore_ReleaseForRetry(t *testing.T) {
	resetSchedule(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-1", now.Add(-time.Minute))))
	require.NoError(t, testStore.MarkInFlight(ctx, "msg-1"))

	next := now.Add(10 * time.Second)
	require.NoError(t, testStore.Release(ctx, "msg-1", next))

	// Not due until the next-attempt time passes.
	due, err := testStore.LoadDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = testStore.LoadDue(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, schedule.StatusPending, due[0].Status)
}

func TestPGStore_TerminalRemovalIdempotent(t *testing.T) {
	resetSchedule(t)
	ctx := context.Background()

	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-1", time.Now().UTC())))
	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-2", time.Now().UTC())))

	require.NoError(t, testStore.Complete(ctx, "msg-1"))
	assert.ErrorIs(t, testStore.Complete(ctx, "msg-1"), schedule.ErrNotFound)

	require.NoError(t, testStore.FailPermanent(ctx, "msg-2"))
	assert.ErrorIs(t, testStore.FailPermanent(ctx, "msg-2"), schedule.ErrNotFound)
}

func TestPGStore_LoadAllRecoversInFlight(t *testing.T) {
	resetSchedule(t)
	ctx := context.Background()

	require.NoError(t, testStore.Insert(ctx, pendingRecord("msg-1", time.Now().UTC())))
	require.NoError(t, testStore.MarkInFlight(ctx, "msg-1"))

	// A restart runs LoadAll, which re-adopts in-flight claims as pending.
	all, err := testStore.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, schedule.StatusPending, all[0].Status)

	// The record can be claimed again afterwards.
	require.NoError(t, testStore.MarkInFlight(ctx, "msg-1"))
}
