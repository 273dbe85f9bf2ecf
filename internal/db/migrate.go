// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "github.com/gardenproof/fieldsync/internal/errors"
)

// Migration represents an applied database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migration is a compiled-in schema step. Migrations are applied in order
// inside a transaction each; versions must be contiguous and never edited
// after release (the checksum of the SQL is recorded).
type migration struct {
	version     int
	description string
	sql         string
}

var migrations = []migration{
	{
		version:     1,
		description: "pending_items",
		sql: `
		CREATE TABLE pending_items (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL CHECK(kind IN ('submission', 'approval')),
			payload TEXT NOT NULL,
			sync_state TEXT NOT NULL DEFAULT 'pending'
				CHECK(sync_state IN ('pending', 'synced', 'failed')),
			fail_reason TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			seq INTEGER NOT NULL UNIQUE
		);
		CREATE INDEX idx_pending_items_state ON pending_items(sync_state);
		CREATE INDEX idx_pending_items_order ON pending_items(created_at, seq);
		`,
	},
	{
		version:     2,
		description: "attachments",
		sql: `
		CREATE TABLE attachments (
			item_id TEXT NOT NULL REFERENCES pending_items(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			blob_hash TEXT NOT NULL,
			size INTEGER NOT NULL,
			media_type TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (item_id, position)
		);
		CREATE INDEX idx_attachments_blob ON attachments(blob_hash);
		`,
	},
}

// Migrator applies the compiled-in schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	if _, err := m.db.Exec(query); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "initialize schema_migrations", err)
	}
	return nil
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrMigration, "read schema version", err)
	}
	return version, nil
}

// AppliedMigrations returns all applied migrations in version order.
func (m *Migrator) AppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query(
		"SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMigration, "list applied migrations", err)
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrMigration, "scan migration row", err)
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	appliedVersions := make(map[int]bool, len(applied))
	for _, mig := range applied {
		appliedVersions[mig.Version] = true
	}

	for _, mig := range migrations {
		if appliedVersions[mig.version] {
			continue
		}
		if err := m.apply(mig); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("apply migration V%d (%s)", mig.version, mig.description), err)
		}
	}

	return nil
}

// apply runs a single migration inside a transaction and records it.
func (m *Migrator) apply(mig migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.sql); err != nil {
		return err
	}

	hash := sha256.Sum256([]byte(mig.sql))
	checksum := hex.EncodeToString(hash[:])
	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, mig.version, time.Now().Unix(), mig.description, checksum); err != nil {
		return err
	}

	return tx.Commit()
}

// Migrate opens nothing itself; it initializes and applies all migrations
// against an already-open database.
func Migrate(db *sql.DB) error {
	m := NewMigrator(db)
	if err := m.Initialize(); err != nil {
		return err
	}
	return m.Up()
}
