// Package engine provides the sync orchestrator: it drains the pending-item
// store against the remote chain whenever connectivity allows, consulting
// the duplicate oracle before every submission.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/gardenproof/fieldsync/internal/dedupe"
	apperrors "github.com/gardenproof/fieldsync/internal/errors"
	"github.com/gardenproof/fieldsync/internal/logging"
	"github.com/gardenproof/fieldsync/internal/models"
	"github.com/gardenproof/fieldsync/internal/store"
	"github.com/gardenproof/fieldsync/internal/syncstate"
)

// Submitter is the external transaction-submission contract. Any returned
// error is recorded per item; it never aborts a batch.
type Submitter interface {
	Submit(ctx context.Context, kind models.ItemKind, payload json.RawMessage) (txRef string, err error)
}

// SubmitterFunc adapts a plain function to the Submitter interface.
type SubmitterFunc func(ctx context.Context, kind models.ItemKind, payload json.RawMessage) (string, error)

// Submit implements Submitter.
func (f SubmitterFunc) Submit(ctx context.Context, kind models.ItemKind, payload json.RawMessage) (string, error) {
	return f(ctx, kind, payload)
}

// Orchestrator drives the pending-item store to empty. Items are processed
// strictly one at a time: concurrent submission from the same account races
// against the account's transaction sequence number, and a failed-but-
// delivered submission next to a concurrent duplicate cannot be safely
// disambiguated afterwards.
type Orchestrator struct {
	store  *store.Store
	dedupe *dedupe.Manager
	state  *syncstate.Container
	log    *zap.SugaredLogger

	mu        sync.RWMutex
	submitter Submitter

	// inFlight is the explicit one-sync-at-a-time guard. It is claimed with
	// a compare-and-swap and released in a deferred path, so a panic inside
	// the loop cannot leave sync permanently stuck.
	inFlight atomic.Bool
}

// New creates an Orchestrator. The submitter is wired later via
// SetSubmitter; until then every sync attempt is a silent no-op.
func New(st *store.Store, dm *dedupe.Manager, state *syncstate.Container, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Orchestrator{
		store:  st,
		dedupe: dm,
		state:  state,
		log:    log,
	}
}

// SetSubmitter wires the external transaction submitter.
func (o *Orchestrator) SetSubmitter(s Submitter) {
	o.mu.Lock()
	o.submitter = s
	o.mu.Unlock()
}

func (o *Orchestrator) currentSubmitter() Submitter {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.submitter
}

// SyncAll drains the queue once. It returns immediately, without error, when
// a sync is already in flight, the device is offline, or no submitter is
// configured: all three are normal conditions, not failures.
//
// One item's failure never aborts the batch; failed items stay queued and
// surface through the pending count, not through a run-level error status.
func (o *Orchestrator) SyncAll(ctx context.Context) error {
	submitter := o.currentSubmitter()
	if submitter == nil {
		return nil
	}
	if !o.state.Snapshot().IsOnline {
		return nil
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer o.inFlight.Store(false)

	o.state.SetSyncStatus(syncstate.StatusSyncing)
	defer func() {
		o.refreshCounts()
		o.state.SetSyncStatus(syncstate.StatusIdle)
	}()

	items, err := o.store.ListUnsynced()
	if err != nil {
		o.log.Errorw("failed to list unsynced items", "error", err)
		return err
	}

	o.log.Infow("sync run starting", "unsynced", len(items))

	for _, item := range items {
		o.syncItem(ctx, item, submitter)
	}

	return nil
}

// SyncOne retries a single item outside the batch loop, for manual retry of
// a failed item. An already-synced item is left untouched.
func (o *Orchestrator) SyncOne(ctx context.Context, id models.UUID) error {
	submitter := o.currentSubmitter()
	if submitter == nil {
		return apperrors.New(apperrors.ErrSyncNotConfigured, "no transaction submitter configured")
	}

	item, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if item.SyncState == models.SyncStateSynced {
		return nil
	}

	o.syncItem(ctx, item, submitter)
	o.refreshCounts()
	return nil
}

// syncItem processes one item to a terminal outcome for this run: synced,
// or failed with a recorded reason. It never returns an error; recording
// failures is the error path.
func (o *Orchestrator) syncItem(ctx context.Context, item *models.PendingItem, submitter Submitter) {
	hash := item.ContentHash
	if hash == "" {
		metas, err := o.store.AttachmentMetaFor(item.ID)
		if err != nil {
			o.log.Errorw("failed to read attachments for hashing",
				"item_id", item.ID, "error", err)
			o.markFailed(item.ID, err.Error())
			return
		}
		hash, err = dedupe.ContentHash(item, len(metas))
		if err != nil {
			o.log.Errorw("failed to fingerprint item", "item_id", item.ID, "error", err)
			o.markFailed(item.ID, err.Error())
			return
		}
		if err := o.store.SetContentHash(item.ID, hash); err != nil {
			o.log.Warnw("failed to persist content hash", "item_id", item.ID, "error", err)
		}
	}

	if o.dedupe.IsRemoteDuplicate(ctx, hash) {
		o.log.Infow("item already committed remotely, resolving as duplicate",
			"item_id", item.ID, "content_hash", hash)
		o.markSynced(item.ID)
		return
	}

	txRef, err := submitter.Submit(ctx, item.Kind, item.Payload)
	if err != nil {
		o.log.Warnw("submission failed", "item_id", item.ID, "kind", item.Kind, "error", err)
		o.markFailed(item.ID, err.Error())
		return
	}

	o.log.Infow("item submitted", "item_id", item.ID, "kind", item.Kind, "tx_ref", txRef)
	o.markSynced(item.ID)
}

func (o *Orchestrator) markSynced(id models.UUID) {
	if err := o.store.MarkSynced(id); err != nil {
		o.log.Errorw("failed to mark item synced", "item_id", id, "error", err)
	}
}

func (o *Orchestrator) markFailed(id models.UUID, reason string) {
	if err := o.store.MarkFailed(id, reason); err != nil {
		o.log.Errorw("failed to record item failure", "item_id", id, "error", err)
	}
}

// refreshCounts updates the state container from the store: unsynced items
// feed the pending count, duplicate content hashes among unsynced items feed
// the conflict count, and leftover synced rows raise the cleanup flag.
func (o *Orchestrator) refreshCounts() {
	pending, err := o.store.CountUnsynced()
	if err != nil {
		o.log.Errorw("failed to count unsynced items", "error", err)
	} else {
		o.state.SetPendingCount(pending)
	}

	synced, err := o.store.CountSynced()
	if err != nil {
		o.log.Errorw("failed to count synced items", "error", err)
	} else {
		o.state.SetNeedsCleanup(synced > 0)
	}

	items, err := o.store.ListUnsynced()
	if err != nil {
		o.log.Errorw("failed to list unsynced items for conflict count", "error", err)
		return
	}
	seen := make(map[string]int)
	conflicts := 0
	for _, item := range items {
		if item.ContentHash == "" {
			continue
		}
		seen[item.ContentHash]++
		if seen[item.ContentHash] == 2 {
			conflicts++
		}
	}
	o.state.SetConflictCount(conflicts)
}

// Cleanup purges synced items and their attachments, then clears the
// cleanup flag. Not part of the normal sync flow.
func (o *Orchestrator) Cleanup() (int, error) {
	purged, err := o.store.PurgeSynced()
	if err != nil {
		return 0, err
	}
	o.refreshCounts()
	o.log.Infow("purged synced items", "count", purged)
	return purged, nil
}
