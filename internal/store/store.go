// Package store provides the durable pending-item store: transactional CRUD
// over queued operations and their binary attachments, surviving process
// restarts. The store has no knowledge of network or chain state.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/gardenproof/fieldsync/internal/errors"
	"github.com/gardenproof/fieldsync/internal/models"
)

// Blob is one attachment to enqueue alongside an item.
type Blob struct {
	Data      []byte
	MediaType string
}

// Store provides CRUD operations over pending items and attachments.
// Item rows live in SQLite; attachment bytes live in the content-addressed
// blob store and are referenced by hash.
type Store struct {
	db    *sql.DB
	blobs *BlobStore
}

// New creates a Store over an open database and blob store.
func New(db *sql.DB, blobs *BlobStore) *Store {
	return &Store{db: db, blobs: blobs}
}

// Enqueue persists a new pending item with its attachments and returns the
// assigned identifier. It always succeeds regardless of connectivity: no
// network is touched. The item row and attachment rows are written in one
// transaction; blob bytes are written (idempotently, content-addressed)
// before the transaction commits, so a committed item never references a
// missing blob.
func (s *Store) Enqueue(kind models.ItemKind, payload json.RawMessage, attachments []Blob) (models.UUID, error) {
	if kind != models.KindSubmission && kind != models.KindApproval {
		return "", apperrors.New(apperrors.ErrInvalid, "unknown item kind")
	}
	if len(payload) == 0 {
		return "", apperrors.New(apperrors.ErrInvalid, "empty payload")
	}

	id := models.NewUUID()
	now := time.Now().Unix()

	hashes := make([]string, len(attachments))
	for i, blob := range attachments {
		hash, err := s.blobs.Put(blob.Data)
		if err != nil {
			return "", err
		}
		hashes[i] = hash
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "begin enqueue transaction", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRow("SELECT COALESCE(MAX(seq), 0) + 1 FROM pending_items").Scan(&seq); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "allocate sequence number", err)
	}

	_, err = tx.Exec(`
		INSERT INTO pending_items (id, kind, payload, sync_state, fail_reason, content_hash, created_at, seq)
		VALUES (?, ?, ?, ?, '', '', ?, ?)`,
		id, kind, string(payload), models.SyncStatePending, now, seq)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "insert pending item", err)
	}

	for i, blob := range attachments {
		_, err = tx.Exec(`
			INSERT INTO attachments (item_id, position, blob_hash, size, media_type)
			VALUES (?, ?, ?, ?, ?)`,
			id, i, hashes[i], len(blob.Data), blob.MediaType)
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrStorage, "insert attachment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "commit enqueue transaction", err)
	}

	return id, nil
}

const itemColumns = "id, kind, payload, sync_state, fail_reason, content_hash, created_at, seq"

func scanItem(row interface{ Scan(...interface{}) error }) (*models.PendingItem, error) {
	var item models.PendingItem
	var payload string
	err := row.Scan(&item.ID, &item.Kind, &payload, &item.SyncState,
		&item.FailReason, &item.ContentHash, &item.CreatedAt, &item.Seq)
	if err != nil {
		return nil, err
	}
	item.Payload = json.RawMessage(payload)
	return &item, nil
}

// ListUnsynced returns all items not yet synced, in creation order (FIFO).
// Ordering matters: approvals may depend on the submission they reference
// having been processed first.
func (s *Store) ListUnsynced() ([]*models.PendingItem, error) {
	rows, err := s.db.Query(`
		SELECT `+itemColumns+` FROM pending_items
		WHERE sync_state != ?
		ORDER BY created_at, seq`, models.SyncStateSynced)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "list unsynced items", err)
	}
	defer rows.Close()

	var items []*models.PendingItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "scan pending item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "iterate unsynced items", err)
	}
	return items, nil
}

// Get retrieves a pending item by ID.
func (s *Store) Get(id models.UUID) (*models.PendingItem, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM pending_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, "pending item not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "get pending item", err)
	}
	return item, nil
}

// MarkSynced sets an item's state to synced. Idempotent: marking an
// already-synced item is a no-op. Synced is terminal; the failure reason is
// cleared.
func (s *Store) MarkSynced(id models.UUID) error {
	res, err := s.db.Exec(`
		UPDATE pending_items SET sync_state = ?, fail_reason = ''
		WHERE id = ?`, models.SyncStateSynced, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "mark item synced", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "mark item synced", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "pending item not found")
	}
	return nil
}

// MarkFailed records a failure reason for an item. Overwrites any prior
// reason. A synced item is terminal and is left untouched.
func (s *Store) MarkFailed(id models.UUID, reason string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "begin mark-failed transaction", err)
	}
	defer tx.Rollback()

	var state models.SyncState
	err = tx.QueryRow("SELECT sync_state FROM pending_items WHERE id = ?", id).Scan(&state)
	if err == sql.ErrNoRows {
		return apperrors.New(apperrors.ErrNotFound, "pending item not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "read item state", err)
	}
	if state == models.SyncStateSynced {
		return nil
	}

	_, err = tx.Exec(`UPDATE pending_items SET sync_state = ?, fail_reason = ? WHERE id = ?`,
		models.SyncStateFailed, reason, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "mark item failed", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "commit mark-failed transaction", err)
	}
	return nil
}

// SetContentHash records the computed content fingerprint for an item so it
// survives restarts and is not recomputed on every sync pass.
func (s *Store) SetContentHash(id models.UUID, hash string) error {
	_, err := s.db.Exec(`UPDATE pending_items SET content_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "set content hash", err)
	}
	return nil
}

// AttachmentsFor returns the attachment blobs of an item, in position order.
func (s *Store) AttachmentsFor(id models.UUID) ([][]byte, error) {
	metas, err := s.AttachmentMetaFor(id)
	if err != nil {
		return nil, err
	}

	blobs := make([][]byte, 0, len(metas))
	for _, meta := range metas {
		data, err := s.blobs.Get(meta.BlobHash)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, data)
	}
	return blobs, nil
}

// AttachmentMetaFor returns attachment metadata for an item, in position order.
func (s *Store) AttachmentMetaFor(id models.UUID) ([]*models.Attachment, error) {
	rows, err := s.db.Query(`
		SELECT item_id, position, blob_hash, size, media_type
		FROM attachments WHERE item_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "list attachments", err)
	}
	defer rows.Close()

	var metas []*models.Attachment
	for rows.Next() {
		var meta models.Attachment
		if err := rows.Scan(&meta.ItemID, &meta.Position, &meta.BlobHash,
			&meta.Size, &meta.MediaType); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "scan attachment", err)
		}
		metas = append(metas, &meta)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "iterate attachments", err)
	}
	return metas, nil
}

// PurgeSynced deletes all synced items, their attachment rows, and any blobs
// no longer referenced by a remaining attachment. Returns the number of
// items removed. Used by cleanup, not by the normal sync flow.
func (s *Store) PurgeSynced() (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "begin purge transaction", err)
	}
	defer tx.Rollback()

	hashes, err := collectHashes(tx, `
		SELECT DISTINCT a.blob_hash FROM attachments a
		JOIN pending_items p ON p.id = a.item_id
		WHERE p.sync_state = ?`, models.SyncStateSynced)
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(`DELETE FROM pending_items WHERE sync_state = ?`, models.SyncStateSynced)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "delete synced items", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "count purged items", err)
	}

	// Blobs may be shared with still-pending items; keep those.
	var orphaned []string
	for _, hash := range hashes {
		var refs int
		if err := tx.QueryRow("SELECT COUNT(*) FROM attachments WHERE blob_hash = ?", hash).Scan(&refs); err != nil {
			return 0, apperrors.Wrap(apperrors.ErrStorage, "count blob references", err)
		}
		if refs == 0 {
			orphaned = append(orphaned, hash)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "commit purge transaction", err)
	}

	// Blob deletion happens after commit; a blob left behind by a crash here
	// is unreferenced garbage, not data loss.
	for _, hash := range orphaned {
		if err := s.blobs.Delete(hash); err != nil {
			return int(purged), err
		}
	}

	return int(purged), nil
}

func collectHashes(tx *sql.Tx, query string, args ...interface{}) ([]string, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "collect blob hashes", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "scan blob hash", err)
		}
		hashes = append(hashes, hash)
	}
	return hashes, rows.Err()
}

// CountUnsynced returns the number of items not yet synced.
func (s *Store) CountUnsynced() (int, error) {
	return s.countState("sync_state != ?", models.SyncStateSynced)
}

// CountSynced returns the number of synced items awaiting cleanup.
func (s *Store) CountSynced() (int, error) {
	return s.countState("sync_state = ?", models.SyncStateSynced)
}

func (s *Store) countState(cond string, args ...interface{}) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM pending_items WHERE "+cond, args...).Scan(&n)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "count pending items", err)
	}
	return n, nil
}
