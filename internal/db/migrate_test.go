package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrateFromScratch(t *testing.T) {
	database := openTestDB(t)

	require.NoError(t, Migrate(database.DB))

	m := NewMigrator(database.DB)
	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	// Schema is actually usable.
	_, err = database.Exec(`
		INSERT INTO pending_items (id, kind, payload, created_at, seq)
		VALUES ('test-id', 'submission', '{}', 1, 1)`)
	require.NoError(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openTestDB(t)

	require.NoError(t, Migrate(database.DB))
	require.NoError(t, Migrate(database.DB))

	m := NewMigrator(database.DB)
	applied, err := m.AppliedMigrations()
	require.NoError(t, err)
	assert.Len(t, applied, len(migrations))
}

func TestMigrationsRecordChecksums(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, Migrate(database.DB))

	m := NewMigrator(database.DB)
	applied, err := m.AppliedMigrations()
	require.NoError(t, err)

	for _, mig := range applied {
		assert.Len(t, mig.Checksum, 64)
		assert.NotEmpty(t, mig.Description)
		assert.False(t, mig.AppliedAt.IsZero())
	}
}

func TestSchemaRejectsUnknownStates(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, Migrate(database.DB))

	_, err := database.Exec(`
		INSERT INTO pending_items (id, kind, payload, sync_state, created_at, seq)
		VALUES ('bad', 'submission', '{}', 'exploded', 1, 1)`)
	assert.Error(t, err)

	_, err = database.Exec(`
		INSERT INTO pending_items (id, kind, payload, created_at, seq)
		VALUES ('bad2', 'teleport', '{}', 1, 2)`)
	assert.Error(t, err)
}

func TestAttachmentsCascadeOnDelete(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, Migrate(database.DB))

	_, err := database.Exec(`
		INSERT INTO pending_items (id, kind, payload, created_at, seq)
		VALUES ('item-1', 'submission', '{}', 1, 1)`)
	require.NoError(t, err)
	_, err = database.Exec(`
		INSERT INTO attachments (item_id, position, blob_hash, size)
		VALUES ('item-1', 0, 'abc', 10)`)
	require.NoError(t, err)

	_, err = database.Exec(`DELETE FROM pending_items WHERE id = 'item-1'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, database.QueryRow(
		`SELECT COUNT(*) FROM attachments WHERE item_id = 'item-1'`).Scan(&n))
	assert.Zero(t, n)
}
