// Package storage persists per-project build state in a small SQLite
// ledger at <project>/.pew/state.db.
//
// The ledger records where each (platform, config) artifact sits in the
// unbuilt → built → signed → notarized progression and every notarization
// submission, so `pew notarize` can refuse unsigned bundles and report the
// request id of earlier uploads.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// Dir is the per-project directory holding pew's own state.
	Dir = ".pew"
	// DBFile is the ledger file name inside Dir.
	DBFile = "state.db"
)

const createArtifactsTable = `
CREATE TABLE IF NOT EXISTS artifacts (
	platform   TEXT NOT NULL,
	config     TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL,
	path       TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY (platform, config)
)`

const createSubmissionsTable = `
CREATE TABLE IF NOT EXISTS submissions (
	request_id   TEXT PRIMARY KEY,
	platform     TEXT NOT NULL,
	config       TEXT NOT NULL DEFAULT '',
	artifact     TEXT NOT NULL,
	status       TEXT NOT NULL,
	submitted_at TEXT NOT NULL,
	updated_at   TEXT NOT NULL
)`

const createSubmissionsIndex = `
CREATE INDEX IF NOT EXISTS idx_submissions_platform
	ON submissions (platform, config, submitted_at)`

// Ledger is the project's build-state database.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates <projectRoot>/.pew/state.db.
func Open(projectRoot string) (*Ledger, error) {
	dir := filepath.Join(projectRoot, Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return OpenPath(filepath.Join(dir, DBFile))
}

// OpenPath opens a ledger at an explicit path (":memory:" for tests).
func OpenPath(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// CreateSchema creates the ledger tables if they do not exist.
// Uses a transaction so the schema is created completely or not at all.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	statements := []struct {
		name string
		ddl  string
	}{
		{"artifacts", createArtifactsTable},
		{"submissions", createSubmissionsTable},
		{"submissions index", createSubmissionsIndex},
	}
	for _, s := range statements {
		if _, err := tx.Exec(s.ddl); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

func (l *Ledger) timestamp() string {
	return l.now().UTC().Format(time.RFC3339)
}
