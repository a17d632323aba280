// Package sqlite persists run records in an embedded SQLite file, one JSON
// document per record.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"eggjnd/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.RunStore = (*Store)(nil)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "eggjnd.db"

const schema = `CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	payload BLOB NOT NULL
)`

// Store implements domain.RunStore on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; parallel groups share the handle.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

func (s *Store) Save(ctx context.Context, rec domain.RunRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, run_id, created_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET run_id = excluded.run_id, created_at = excluded.created_at, payload = excluded.payload`,
		rec.ID, rec.RunID, rec.CreatedAt.UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.RunRecord, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunRecord{}, domain.ErrNotFound{Entity: "run", ID: id}
	}
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("select run %s: %w", id, err)
	}
	var rec domain.RunRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, runID string) ([]domain.RunRecord, error) {
	query := `SELECT payload FROM runs`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.RunRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var rec domain.RunRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	domain.SortRunRecords(out)
	return out, nil
}

func (s *Store) Close() error { return s.db.Close() }
