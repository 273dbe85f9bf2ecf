// Package dedupe decides whether a pending item duplicates an operation that
// was already committed remotely, without relying on the item's local ID.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	apperrors "github.com/gardenproof/fieldsync/internal/errors"
	"github.com/gardenproof/fieldsync/internal/models"
)

// fingerprint is the canonical form hashed for deduplication. It carries
// only the semantic payload fields: local IDs and creation timestamps are
// excluded so the same user action hashes identically across devices and
// app restarts. encoding/json sorts map keys, making the encoding stable.
type fingerprint struct {
	Kind          models.ItemKind    `json:"kind"`
	Submission    *submissionFields  `json:"submission,omitempty"`
	Approval      *approvalFields    `json:"approval,omitempty"`
	AttachmentLen int                `json:"attachment_len"`
}

type submissionFields struct {
	Title    string            `json:"title"`
	GardenID string            `json:"garden_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type approvalFields struct {
	SubmissionRef string `json:"submission_ref"`
	Approved      bool   `json:"approved"`
	Feedback      string `json:"feedback"`
}

// ContentHash computes the deterministic SHA-256 fingerprint of an item's
// semantic payload. Two items produced by the same real-world action hash
// identically regardless of their local id or createdAt.
func ContentHash(item *models.PendingItem, attachmentCount int) (string, error) {
	fp := fingerprint{
		Kind:          item.Kind,
		AttachmentLen: attachmentCount,
	}

	switch item.Kind {
	case models.KindSubmission:
		payload, err := item.SubmissionPayload()
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrInvalid, "decode submission payload", err)
		}
		fp.Submission = &submissionFields{
			Title:    payload.Title,
			GardenID: payload.GardenID,
			Metadata: payload.Metadata,
		}
	case models.KindApproval:
		payload, err := item.ApprovalPayload()
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrInvalid, "decode approval payload", err)
		}
		fp.Approval = &approvalFields{
			SubmissionRef: payload.SubmissionRef,
			Approved:      payload.Approved,
			Feedback:      payload.Feedback,
		}
	default:
		return "", apperrors.New(apperrors.ErrInvalid, "unknown item kind")
	}

	canonical, err := json.Marshal(fp)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "encode fingerprint", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
