package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gardenproof/fieldsync/internal/errors"
)

func TestBlobStorePutGet(t *testing.T) {
	s := NewBlobStore(t.TempDir())

	data := []byte("field photo bytes")
	hash, err := s.Put(data)
	require.NoError(t, err)
	assert.Equal(t, HashBlob(data), hash)

	got, err := s.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.True(t, s.Exists(hash))
}

func TestBlobStorePutIsIdempotent(t *testing.T) {
	s := NewBlobStore(t.TempDir())

	data := []byte("same bytes")
	hash1, err := s.Put(data)
	require.NoError(t, err)
	hash2, err := s.Put(data)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)
}

func TestBlobStoreGetMissing(t *testing.T) {
	s := NewBlobStore(t.TempDir())

	_, err := s.Get(HashBlob([]byte("never stored")))
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestBlobStoreDelete(t *testing.T) {
	s := NewBlobStore(t.TempDir())

	hash, err := s.Put([]byte("ephemeral"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(hash))
	assert.False(t, s.Exists(hash))

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(hash))
}
