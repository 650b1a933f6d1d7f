package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"memflow/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	require.NoError(t, EnsureSchema(db))
	return NewStore(db)
}

func sampleSnapshot(id string, state domain.TaskState) domain.TaskSnapshot {
	now := time.Now().UTC().Truncate(time.Second)
	snap := domain.TaskSnapshot{
		ID:        id,
		ProfileID: "job-1",
		State:     state,
		Priority:  domain.PriorityHigh,
		CreatedAt: now.Add(-time.Minute),
		StartedAt: now.Add(-30 * time.Second),
		EndedAt:   now,
		Attempts: []domain.StageAttempt{
			{Stage: "PowerCycle", Attempt: 1, Outcome: domain.OutcomeOK, StartedAt: now.Add(-29 * time.Second), FinishedAt: now.Add(-28 * time.Second)},
			{Stage: "BootloaderHandshake", Attempt: 1, Outcome: domain.OutcomeTransient, Error: "garbled echo", StartedAt: now.Add(-27 * time.Second), FinishedAt: now.Add(-26 * time.Second)},
			{Stage: "BootloaderHandshake", Attempt: 2, Outcome: domain.OutcomeOK, StartedAt: now.Add(-25 * time.Second), FinishedAt: now.Add(-24 * time.Second)},
		},
	}
	if state == domain.StateCompleted {
		snap.Result = &domain.TaskResult{OutputPath: "/tmp/flash.bin", ByteCount: 65536, Throughput: 2048.5}
	}
	return snap
}

func TestRecordAndListRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleSnapshot("tsk_1", domain.StateCompleted)))
	require.NoError(t, store.Record(ctx, sampleSnapshot("tsk_2", domain.StateFailed)))

	snaps, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	byID := map[string]domain.TaskSnapshot{}
	for _, s := range snaps {
		byID[s.ID] = s
	}
	done := byID["tsk_1"]
	assert.Equal(t, domain.StateCompleted, done.State)
	assert.Equal(t, domain.PriorityHigh, done.Priority)
	require.NotNil(t, done.Result)
	assert.Equal(t, int64(65536), done.Result.ByteCount)

	failed := byID["tsk_2"]
	assert.Equal(t, domain.StateFailed, failed.State)
	assert.Nil(t, failed.Result)
}

func TestRecord_Idempotent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	snap := sampleSnapshot("tsk_1", domain.StateCompleted)
	require.NoError(t, store.Record(ctx, snap))
	require.NoError(t, store.Record(ctx, snap))

	snaps, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestAttempts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleSnapshot("tsk_1", domain.StateCompleted)))

	attempts, err := store.Attempts(ctx, "tsk_1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, "PowerCycle", attempts[0].Stage)
	assert.Equal(t, domain.OutcomeTransient, attempts[1].Outcome)
	assert.Equal(t, "garbled echo", attempts[1].Error)
	assert.Equal(t, 2, attempts[2].Attempt)
}

func TestListRecent_Limit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, id := range []string{"tsk_1", "tsk_2", "tsk_3"} {
		require.NoError(t, store.Record(ctx, sampleSnapshot(id, domain.StateCanceled)))
	}
	snaps, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}
