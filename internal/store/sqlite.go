// ABOUTME: SQLite implementation of the store interfaces using modernc.org/sqlite
// ABOUTME: Provides schema creation, WAL configuration, and shared scan helpers

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the store interfaces using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ PrincipalStore = (*SQLiteStore)(nil)
	_ PrivilegeStore = (*SQLiteStore)(nil)
	_ DeviceStore    = (*SQLiteStore)(nil)
	_ ChallengeStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys so device/identity rows follow their principal
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			id          TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			nickname    TEXT NOT NULL,
			active      INTEGER NOT NULL DEFAULT 1,
			created_at  TEXT NOT NULL,
			modified_at TEXT NOT NULL,

			CHECK (type IN ('user', 'app', 'group'))
		);

		CREATE INDEX IF NOT EXISTS idx_principals_type ON principals(type);

		-- The uri primary key is the atomic uniqueness point for identity
		-- creation: concurrent inserts for the same URI cannot both succeed.
		CREATE TABLE IF NOT EXISTS principal_identities (
			uri          TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			is_primary   INTEGER NOT NULL DEFAULT 0,
			label        TEXT,
			verified_at  TEXT,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_identities_principal
			ON principal_identities(principal_id);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_primary
			ON principal_identities(principal_id) WHERE is_primary = 1;

		CREATE TABLE IF NOT EXISTS privilege_grants (
			principal_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			privilege    TEXT NOT NULL,
			scope_target TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,

			PRIMARY KEY (principal_id, privilege, scope_target)
		);

		CREATE TABLE IF NOT EXISTS group_members (
			group_id     TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			principal_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			created_at   TEXT NOT NULL,

			PRIMARY KEY (group_id, principal_id)
		);

		CREATE INDEX IF NOT EXISTS idx_group_members_principal
			ON group_members(principal_id);

		CREATE TABLE IF NOT EXISTS webauthn_devices (
			id               TEXT PRIMARY KEY,
			principal_id     TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			credential_id    BLOB UNIQUE NOT NULL,
			public_key       BLOB NOT NULL,
			attestation_type TEXT,
			transports       TEXT,
			counter          INTEGER NOT NULL DEFAULT 0,
			flagged_at       TEXT,
			created_at       TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_devices_principal
			ON webauthn_devices(principal_id);

		-- Ceremony challenges (short-lived, single-use)
		CREATE TABLE IF NOT EXISTS challenges (
			value        TEXT PRIMARY KEY,
			principal_id TEXT,
			session_data BLOB NOT NULL,
			created_at   TEXT NOT NULL,
			expires_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_challenges_expires ON challenges(expires_at);

		CREATE TABLE IF NOT EXISTS user_passwords (
			principal_id  TEXT PRIMARY KEY REFERENCES principals(id) ON DELETE CASCADE,
			password_hash TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}

// formatTime renders a timestamp in the canonical column format.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a timestamp column written by formatTime.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// parseNullTime parses an optional timestamp column.
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
