package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS editor_last_file (
	workspace_id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and ensures its schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect state database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// LastFile implements Store.
func (s *SQLiteStore) LastFile(ctx context.Context, workspaceID string) (string, bool, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT path FROM editor_last_file WHERE workspace_id = ?`, workspaceID).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load last file: %w", err)
	}
	return path, true, nil
}

// SetLastFile implements Store.
func (s *SQLiteStore) SetLastFile(ctx context.Context, workspaceID, path string) error {
	if path == "" {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM editor_last_file WHERE workspace_id = ?`, workspaceID); err != nil {
			return fmt.Errorf("clear last file: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO editor_last_file (workspace_id, path, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(workspace_id) DO UPDATE SET path = excluded.path, updated_at = excluded.updated_at`,
		workspaceID, path, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save last file: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
