// Package fieldsync is the embeddable entry point for host applications
// (mobile binding layers, the syncd daemon, tests). It wires the pending
// store, deduplication manager, state container, and sync orchestrator into
// one engine with a narrow surface.
package fieldsync

import (
	"context"
	"encoding/json"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/gardenproof/fieldsync/internal/db"
	"github.com/gardenproof/fieldsync/internal/dedupe"
	"github.com/gardenproof/fieldsync/internal/engine"
	"github.com/gardenproof/fieldsync/internal/logging"
	"github.com/gardenproof/fieldsync/internal/models"
	"github.com/gardenproof/fieldsync/internal/store"
	"github.com/gardenproof/fieldsync/internal/syncstate"
)

// Re-exported types forming the engine's public surface.
type (
	Submitter     = engine.Submitter
	SubmitterFunc = engine.SubmitterFunc
	Oracle        = dedupe.Oracle
	OracleFunc    = dedupe.OracleFunc
	Snapshot      = syncstate.Snapshot
	Issue         = syncstate.Issue
	PendingItem   = models.PendingItem
	UUID          = models.UUID
)

// Options configures an Engine.
type Options struct {
	// DataDir holds the SQLite database and attachment blobs.
	DataDir string
	// Oracle answers remote duplicate queries. Optional; without one every
	// item is treated as new.
	Oracle Oracle
	// Logger defaults to a no-op logger.
	Logger *zap.SugaredLogger
}

// Engine is one fully-wired fieldsync instance.
type Engine struct {
	database *db.DB
	store    *store.Store
	state    *syncstate.Container
	orch     *engine.Orchestrator
}

// Open builds an Engine over the given data directory, creating or
// migrating the local database as needed. Open never touches the network.
func Open(opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	database, err := db.Open(opts.DataDir)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database.DB); err != nil {
		database.Close()
		return nil, err
	}

	blobs := store.NewBlobStore(filepath.Join(opts.DataDir, "blobs"))
	st := store.New(database.DB, blobs)
	state := syncstate.New()
	orch := engine.New(st, dedupe.NewManager(opts.Oracle, log), state, log)

	return &Engine{
		database: database,
		store:    st,
		state:    state,
		orch:     orch,
	}, nil
}

// Close releases the underlying database.
func (e *Engine) Close() error {
	return e.database.Close()
}

// SetSubmitter wires the external transaction submitter. Until this is
// called, sync runs are silent no-ops and items simply accumulate.
func (e *Engine) SetSubmitter(s Submitter) {
	e.orch.SetSubmitter(s)
}

// Attachment is one binary blob handed over at enqueue time.
type Attachment struct {
	Data      []byte
	MediaType string
}

// EnqueueSubmission queues a new work record. Always succeeds offline.
func (e *Engine) EnqueueSubmission(p models.SubmissionPayload, attachments ...Attachment) (UUID, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return e.store.Enqueue(models.KindSubmission, raw, toBlobs(attachments))
}

// EnqueueApproval queues a decision on an existing submission.
func (e *Engine) EnqueueApproval(p models.ApprovalPayload) (UUID, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return e.store.Enqueue(models.KindApproval, raw, nil)
}

func toBlobs(attachments []Attachment) []store.Blob {
	blobs := make([]store.Blob, len(attachments))
	for i, a := range attachments {
		blobs[i] = store.Blob{Data: a.Data, MediaType: a.MediaType}
	}
	return blobs
}

// Sync drains the pending queue once. See the orchestrator's rules: no-op
// when offline, unconfigured, or already in flight.
func (e *Engine) Sync(ctx context.Context) error {
	return e.orch.SyncAll(ctx)
}

// SyncOne retries a single failed item.
func (e *Engine) SyncOne(ctx context.Context, id UUID) error {
	return e.orch.SyncOne(ctx, id)
}

// Cleanup purges synced items and their attachments.
func (e *Engine) Cleanup() (int, error) {
	return e.orch.Cleanup()
}

// Pending returns all not-yet-synced items in FIFO order.
func (e *Engine) Pending() ([]*PendingItem, error) {
	return e.store.ListUnsynced()
}

// Attachments returns the stored blobs of an item, in order.
func (e *Engine) Attachments(id UUID) ([][]byte, error) {
	return e.store.AttachmentsFor(id)
}

// Status returns the current sync/network snapshot.
func (e *Engine) Status() Snapshot {
	return e.state.Snapshot()
}

// Subscribe registers a listener for every state change.
func (e *Engine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return e.state.Subscribe(fn)
}

// HandleOnline mirrors the platform's become-online signal into the engine.
func (e *Engine) HandleOnline() { e.state.HandleOnline() }

// HandleOffline mirrors the platform's become-offline signal.
func (e *Engine) HandleOffline() { e.state.HandleOffline() }
