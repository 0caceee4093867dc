// Package sqlite provides a SQLite-backed checkpoint store.
//
// Completed document ids are written inside a single transaction per
// checkpoint, so a crash mid-save never leaves a partial batch behind:
// the next run either sees the whole checkpoint or none of it.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/biolit-labs/harvest-cli/internal/adapters/driven/checkpoint/sqlite/migrations"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
)

// Store is a SQLite-based checkpoint store.
type Store struct {
	db   *sql.DB
	path string
}

var _ driven.CheckpointStore = (*Store)(nil)

// NewStore creates a new SQLite checkpoint store at the specified data
// directory. If dataDir is empty, defaults to ~/.harvest/data/checkpoints.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".harvest", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "checkpoints.db")

	// WAL mode so a reader (harvest status) never blocks a running save.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SaveCheckpoint appends the given ids to the scope's completed set.
// Re-saving an id is a no-op, so replaying a checkpoint after a crash
// is safe.
func (s *Store) SaveCheckpoint(ctx context.Context, scope string, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO checkpoints (scope, doc_id)
		VALUES (?, ?)
		ON CONFLICT(scope, doc_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, docID := range docIDs {
		if _, err := stmt.ExecContext(ctx, scope, docID); err != nil {
			return fmt.Errorf("saving checkpoint id %s: %w", docID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// CompletedIDs returns the scope's completed set. An unknown scope
// returns an empty set.
func (s *Store) CompletedIDs(ctx context.Context, scope string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id FROM checkpoints WHERE scope = ?
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]struct{})
	for rows.Next() {
		var docID string
		if err := rows.Scan(&docID); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		completed[docID] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}

	return completed, nil
}

// Clear removes the scope's completed set.
func (s *Store) Clear(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE scope = ?", scope)
	if err != nil {
		return fmt.Errorf("clearing checkpoints: %w", err)
	}
	return nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}
