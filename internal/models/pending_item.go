// Package models provides data model definitions for the fieldsync engine.
package models

import (
	"encoding/json"
	"time"
)

// ItemKind distinguishes the two kinds of deferred work.
type ItemKind string

const (
	KindSubmission ItemKind = "submission"
	KindApproval   ItemKind = "approval"
)

// SyncState represents the lifecycle state of a pending item.
type SyncState string

const (
	SyncStatePending SyncState = "pending"
	SyncStateSynced  SyncState = "synced"
	SyncStateFailed  SyncState = "failed"
)

// SubmissionPayload is the payload of a new work record.
type SubmissionPayload struct {
	Title    string            `json:"title"`
	GardenID string            `json:"garden_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ApprovalPayload is the payload of a decision on an existing submission.
type ApprovalPayload struct {
	SubmissionRef string `json:"submission_ref"`
	Approved      bool   `json:"approved"`
	Feedback      string `json:"feedback,omitempty"`
}

// PendingItem represents a locally queued, not-yet-committed operation.
// The payload is stored as raw JSON and decoded per kind.
type PendingItem struct {
	ID          UUID            `db:"id" json:"id"`
	Kind        ItemKind        `db:"kind" json:"kind"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	SyncState   SyncState       `db:"sync_state" json:"sync_state"`
	FailReason  string          `db:"fail_reason" json:"fail_reason,omitempty"`
	ContentHash string          `db:"content_hash" json:"content_hash,omitempty"`
	CreatedAt   int64           `db:"created_at" json:"created_at"`
	Seq         int64           `db:"seq" json:"-"`
}

// TableName returns the table name for PendingItem.
func (PendingItem) TableName() string {
	return "pending_items"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (p *PendingItem) CreatedAtTime() time.Time {
	return time.Unix(p.CreatedAt, 0)
}

// SubmissionPayload decodes the payload for a submission item.
func (p *PendingItem) SubmissionPayload() (*SubmissionPayload, error) {
	var payload SubmissionPayload
	if err := json.Unmarshal(p.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ApprovalPayload decodes the payload for an approval item.
func (p *PendingItem) ApprovalPayload() (*ApprovalPayload, error) {
	var payload ApprovalPayload
	if err := json.Unmarshal(p.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Attachment references one binary blob belonging to a pending item.
// The bytes themselves live in the content-addressed blob store; Position
// preserves the order in which the blobs were attached.
type Attachment struct {
	ItemID    UUID   `db:"item_id" json:"item_id"`
	Position  int    `db:"position" json:"position"`
	BlobHash  string `db:"blob_hash" json:"blob_hash"`
	Size      int64  `db:"size" json:"size"`
	MediaType string `db:"media_type" json:"media_type"`
}

// TableName returns the table name for Attachment.
func (Attachment) TableName() string {
	return "attachments"
}
