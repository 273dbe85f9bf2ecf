// Content-addressed storage for attachment blobs.
// Blobs are stored by SHA-256 hash, so identical images queued on two items
// are stored only once.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	apperrors "github.com/gardenproof/fieldsync/internal/errors"
)

// BlobStore stores attachment bytes by their content hash (SHA-256).
type BlobStore struct {
	baseDir string
}

// NewBlobStore creates a BlobStore rooted at baseDir.
func NewBlobStore(baseDir string) *BlobStore {
	return &BlobStore{baseDir: baseDir}
}

// HashBlob calculates the SHA-256 hash of blob content.
func HashBlob(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data and returns its content hash. Writing an already-stored
// blob is a no-op. The write is atomic: data lands in a temp file that is
// renamed into place, so a crash never leaves a half-written blob visible.
func (s *BlobStore) Put(data []byte) (string, error) {
	hash := HashBlob(data)

	// Two-level fan-out: baseDir/{hash[0:2]}/{hash[2:4]}/{hash}
	dir := filepath.Join(s.baseDir, hash[0:2], hash[2:4])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "create blob directory", err)
	}

	path := filepath.Join(dir, hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	tmp, err := os.CreateTemp(dir, hash+".tmp*")
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrStorage, "create blob temp file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", apperrors.Wrap(apperrors.ErrStorage, "write blob", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", apperrors.Wrap(apperrors.ErrStorage, "close blob", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", apperrors.Wrap(apperrors.ErrStorage, "finalize blob", err)
	}

	return hash, nil
}

// Get retrieves blob content by hash, verifying it against the hash.
func (s *BlobStore) Get(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "blob not found", err)
		}
		return nil, apperrors.Wrap(apperrors.ErrStorage, "read blob", err)
	}

	if got := HashBlob(data); got != hash {
		return nil, apperrors.New(apperrors.ErrStorage,
			"blob content does not match its hash")
	}

	return data, nil
}

// Exists checks whether a blob is stored for the given hash.
func (s *BlobStore) Exists(hash string) bool {
	_, err := os.Stat(s.path(hash))
	return err == nil
}

// Delete removes a stored blob. Deleting a missing blob is a no-op.
func (s *BlobStore) Delete(hash string) error {
	path := s.path(hash)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Wrap(apperrors.ErrStorage, "delete blob", err)
	}

	// Best-effort cleanup of empty fan-out directories.
	dir := filepath.Dir(path)
	os.Remove(dir)
	os.Remove(filepath.Dir(dir))

	return nil
}

func (s *BlobStore) path(hash string) string {
	return filepath.Join(s.baseDir, hash[0:2], hash[2:4], hash)
}
