package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenproof/fieldsync/internal/db"
	"github.com/gardenproof/fieldsync/internal/dedupe"
	"github.com/gardenproof/fieldsync/internal/engine"
	"github.com/gardenproof/fieldsync/internal/models"
	"github.com/gardenproof/fieldsync/internal/store"
	"github.com/gardenproof/fieldsync/internal/syncstate"
)

func newSchedulerHarness(t *testing.T) (*Scheduler, *store.Store, *syncstate.Container) {
	t.Helper()

	dir := t.TempDir()
	database, err := db.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database.DB))

	st := store.New(database.DB, store.NewBlobStore(dir+"/blobs"))
	state := syncstate.New()
	orch := engine.New(st, dedupe.NewManager(nil, nil), state, nil)
	orch.SetSubmitter(engine.SubmitterFunc(
		func(ctx context.Context, kind models.ItemKind, payload json.RawMessage) (string, error) {
			return "0xtx", nil
		}))

	sched := New(orch, state, Config{
		SyncInterval: time.Hour, // keep the ticker out of the way
		SyncTimeout:  time.Second,
	}, nil)
	t.Cleanup(sched.Stop)

	return sched, st, state
}

func enqueue(t *testing.T, st *store.Store, title string) models.UUID {
	t.Helper()
	raw, err := json.Marshal(models.SubmissionPayload{Title: title, GardenID: "g1"})
	require.NoError(t, err)
	id, err := st.Enqueue(models.KindSubmission, raw, nil)
	require.NoError(t, err)
	return id
}

func waitForSynced(t *testing.T, st *store.Store, id models.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		item, err := st.Get(id)
		require.NoError(t, err)
		if item.SyncState == models.SyncStateSynced {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("item %s never synced", id)
}

func TestSchedulerSyncsOnStart(t *testing.T) {
	sched, st, _ := newSchedulerHarness(t)
	id := enqueue(t, st, "queued before start")

	sched.Start(context.Background())
	waitForSynced(t, st, id)
}

func TestSchedulerSyncsOnReconnect(t *testing.T) {
	sched, st, state := newSchedulerHarness(t)

	state.HandleOffline()
	sched.Start(context.Background())

	id := enqueue(t, st, "queued while offline")

	// Give the start-trigger a chance to run; offline means it must not sync.
	time.Sleep(50 * time.Millisecond)
	item, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatePending, item.SyncState)

	state.HandleOnline()
	waitForSynced(t, st, id)
}

func TestSchedulerManualTrigger(t *testing.T) {
	sched, st, _ := newSchedulerHarness(t)
	sched.Start(context.Background())

	// Wait out the start-trigger, then enqueue and fire manually.
	time.Sleep(50 * time.Millisecond)
	id := enqueue(t, st, "manual retry")

	sched.TriggerSync()
	waitForSynced(t, st, id)
}

func TestSchedulerStartStopAreIdempotent(t *testing.T) {
	sched, _, _ := newSchedulerHarness(t)

	sched.Start(context.Background())
	sched.Start(context.Background())
	sched.Stop()
	sched.Stop()
}
