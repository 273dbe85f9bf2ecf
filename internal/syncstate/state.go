// Package syncstate holds the single source of truth for connectivity and
// sync progress, with push-based change notification for subscribers.
//
// The container is an explicitly constructed, injectable object rather than
// a package-level global, so tests can run isolated instances.
package syncstate

import "sync"

// SyncStatus represents the engine's current sync activity.
type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusSyncing SyncStatus = "syncing"
	StatusError   SyncStatus = "error"
)

// Issue is the single highest-precedence condition chosen for user-facing
// status indication.
type Issue string

const (
	IssueNone      Issue = "none"
	IssueConflicts Issue = "conflicts"
	IssueCleanup   Issue = "cleanup"
	IssueSyncing   Issue = "syncing"
	IssueOffline   Issue = "offline"
	IssuePending   Issue = "pending"
)

// Snapshot is an immutable copy of the container's state.
//
// Counts are stored as given, unclamped: a transiently negative count must
// not crash anything downstream, and DisplayPriority only ever tests > 0.
type Snapshot struct {
	IsOnline      bool       `json:"is_online"`
	SyncStatus    SyncStatus `json:"sync_status"`
	PendingCount  int        `json:"pending_count"`
	ConflictCount int        `json:"conflict_count"`
	NeedsCleanup  bool       `json:"needs_cleanup"`
}

// HasIssues reports whether any condition needs user attention.
func (s Snapshot) HasIssues() bool {
	return !s.IsOnline ||
		s.PendingCount > 0 ||
		s.SyncStatus == StatusSyncing ||
		s.SyncStatus == StatusError ||
		s.ConflictCount > 0 ||
		s.NeedsCleanup
}

// DisplayPriority picks the single banner to show, highest precedence first:
// conflicts > cleanup > syncing > offline > pending, else none.
func (s Snapshot) DisplayPriority() Issue {
	switch {
	case s.ConflictCount > 0:
		return IssueConflicts
	case s.NeedsCleanup:
		return IssueCleanup
	case s.SyncStatus == StatusSyncing:
		return IssueSyncing
	case !s.IsOnline:
		return IssueOffline
	case s.PendingCount > 0:
		return IssuePending
	default:
		return IssueNone
	}
}

// Container is the process-wide sync/network state record. All mutation goes
// through the setters, each of which notifies every subscriber with a fresh
// snapshot. Listeners are invoked on every mutation, not batched; UI code
// debounces if it needs to.
type Container struct {
	mu      sync.Mutex
	state   Snapshot
	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates a Container. The device is assumed online until the platform
// connectivity signal says otherwise; engines must work even when no signal
// is available at all.
func New() *Container {
	return &Container{
		state: Snapshot{
			IsOnline:   true,
			SyncStatus: StatusIdle,
		},
		subs: make(map[int]func(Snapshot)),
	}
}

// Snapshot returns a copy of the current state.
func (c *Container) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a listener invoked on every state mutation. The
// returned unsubscribe function is safe to call more than once.
func (c *Container) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SetOnlineStatus records the platform connectivity signal.
func (c *Container) SetOnlineStatus(online bool) {
	c.mutate(func(s *Snapshot) { s.IsOnline = online })
}

// SetSyncStatus records the orchestrator's activity state.
func (c *Container) SetSyncStatus(status SyncStatus) {
	c.mutate(func(s *Snapshot) { s.SyncStatus = status })
}

// SetPendingCount records the number of unsynced items.
func (c *Container) SetPendingCount(n int) {
	c.mutate(func(s *Snapshot) { s.PendingCount = n })
}

// SetConflictCount records the number of detected duplicate conflicts.
func (c *Container) SetConflictCount(n int) {
	c.mutate(func(s *Snapshot) { s.ConflictCount = n })
}

// SetNeedsCleanup flags that stale synced items should be purged.
func (c *Container) SetNeedsCleanup(needed bool) {
	c.mutate(func(s *Snapshot) { s.NeedsCleanup = needed })
}

// HasIssues derives whether any condition needs user attention.
func (c *Container) HasIssues() bool {
	return c.Snapshot().HasIssues()
}

// DisplayPriority derives the single user-facing banner to show.
func (c *Container) DisplayPriority() Issue {
	return c.Snapshot().DisplayPriority()
}

// HandleOnline is the become-online transition. Idempotent; safe to wire
// directly to a platform event source or to call by hand.
func (c *Container) HandleOnline() {
	c.SetOnlineStatus(true)
}

// HandleOffline is the become-offline transition. Idempotent.
func (c *Container) HandleOffline() {
	c.SetOnlineStatus(false)
}

// mutate applies a change and notifies subscribers outside the lock, so a
// listener may call back into the container without deadlocking.
func (c *Container) mutate(apply func(*Snapshot)) {
	c.mu.Lock()
	apply(&c.state)
	snapshot := c.state
	listeners := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
