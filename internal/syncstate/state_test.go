package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayPriorityTruthTable(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want Issue
	}{
		{
			name: "conflicts outrank cleanup",
			snap: Snapshot{IsOnline: true, ConflictCount: 1, NeedsCleanup: true},
			want: IssueConflicts,
		},
		{
			name: "cleanup when no conflicts",
			snap: Snapshot{IsOnline: true, ConflictCount: 0, NeedsCleanup: true},
			want: IssueCleanup,
		},
		{
			name: "syncing when no conflicts or cleanup",
			snap: Snapshot{IsOnline: true, SyncStatus: StatusSyncing},
			want: IssueSyncing,
		},
		{
			name: "offline when idle",
			snap: Snapshot{IsOnline: false, SyncStatus: StatusIdle},
			want: IssueOffline,
		},
		{
			name: "pending when online and idle",
			snap: Snapshot{IsOnline: true, SyncStatus: StatusIdle, PendingCount: 3},
			want: IssuePending,
		},
		{
			name: "none when all clear",
			snap: Snapshot{IsOnline: true, SyncStatus: StatusIdle},
			want: IssueNone,
		},
		{
			name: "syncing outranks offline",
			snap: Snapshot{IsOnline: false, SyncStatus: StatusSyncing},
			want: IssueSyncing,
		},
		{
			name: "offline outranks pending",
			snap: Snapshot{IsOnline: false, PendingCount: 5},
			want: IssueOffline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.DisplayPriority())
		})
	}
}

func TestHasIssues(t *testing.T) {
	clear := Snapshot{IsOnline: true, SyncStatus: StatusIdle}
	assert.False(t, clear.HasIssues())

	assert.True(t, Snapshot{IsOnline: false, SyncStatus: StatusIdle}.HasIssues())
	assert.True(t, Snapshot{IsOnline: true, SyncStatus: StatusIdle, PendingCount: 1}.HasIssues())
	assert.True(t, Snapshot{IsOnline: true, SyncStatus: StatusSyncing}.HasIssues())
	assert.True(t, Snapshot{IsOnline: true, SyncStatus: StatusError}.HasIssues())
	assert.True(t, Snapshot{IsOnline: true, SyncStatus: StatusIdle, ConflictCount: 1}.HasIssues())
	assert.True(t, Snapshot{IsOnline: true, SyncStatus: StatusIdle, NeedsCleanup: true}.HasIssues())
}

func TestNegativeCountsDoNotCrash(t *testing.T) {
	// Transient negative counts are stored as-is and must not break the
	// derivations.
	c := New()
	c.SetPendingCount(-3)
	c.SetConflictCount(-1)

	assert.Equal(t, -3, c.Snapshot().PendingCount)
	assert.Equal(t, IssueNone, c.DisplayPriority())
	assert.False(t, c.HasIssues())
}

func TestDefaultsToOnline(t *testing.T) {
	c := New()
	snap := c.Snapshot()
	assert.True(t, snap.IsOnline)
	assert.Equal(t, StatusIdle, snap.SyncStatus)
}

func TestSubscribeNotifiesOnEveryMutation(t *testing.T) {
	c := New()

	var got []Snapshot
	unsubscribe := c.Subscribe(func(s Snapshot) {
		got = append(got, s)
	})

	c.SetOnlineStatus(false)
	c.SetSyncStatus(StatusSyncing)
	c.SetPendingCount(2)
	// Same value again still notifies: listeners are not deduplicated.
	c.SetPendingCount(2)

	require.Len(t, got, 4)
	assert.False(t, got[0].IsOnline)
	assert.Equal(t, StatusSyncing, got[1].SyncStatus)
	assert.Equal(t, 2, got[3].PendingCount)

	unsubscribe()
	c.SetConflictCount(1)
	assert.Len(t, got, 4)

	// Unsubscribing twice must not panic.
	unsubscribe()
}

func TestSubscriberMayCallBackIntoContainer(t *testing.T) {
	c := New()

	done := false
	var unsubscribe func()
	unsubscribe = c.Subscribe(func(s Snapshot) {
		if !done {
			done = true
			_ = c.Snapshot()
			unsubscribe()
		}
	})

	c.SetPendingCount(1)
	assert.True(t, done)
}

func TestConnectivityHandlersAreIdempotent(t *testing.T) {
	c := New()

	c.HandleOffline()
	c.HandleOffline()
	assert.False(t, c.Snapshot().IsOnline)

	c.HandleOnline()
	c.HandleOnline()
	assert.True(t, c.Snapshot().IsOnline)
}

func TestMonitorStopIsSafe(t *testing.T) {
	c := New()
	m := NewMonitor(c, "", 0, nil)

	// No probe URL: Start is a no-op and the container stays online.
	m.Start()
	assert.True(t, c.Snapshot().IsOnline)

	// Stop twice, and on a monitor that never really ran.
	m.Stop()
	m.Stop()
}
