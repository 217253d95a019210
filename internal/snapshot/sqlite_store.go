package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/maine/trendradar/internal/news"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	fetched_at INTEGER PRIMARY KEY,
	title_count INTEGER NOT NULL,
	payload TEXT NOT NULL
);`

// SQLiteStore keeps snapshots as JSON rows in an SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

type snapshotRow struct {
	FetchedAt int64  `db:"fetched_at"`
	Payload   string `db:"payload"`
}

// OpenSQLite opens (and migrates) the database at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writes.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts the snapshot. Snapshots are append-only.
func (s *SQLiteStore) Save(ctx context.Context, snap news.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (fetched_at, title_count, payload) VALUES (?, ?, ?)`,
		snap.FetchedAt.UnixNano(), snap.TitleCount(), string(payload))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Load returns snapshots fetched at or after since, oldest first.
func (s *SQLiteStore) Load(ctx context.Context, since time.Time) ([]news.Snapshot, error) {
	var rows []snapshotRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT fetched_at, payload FROM snapshots WHERE fetched_at >= ? ORDER BY fetched_at`,
		since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}

	snaps := make([]news.Snapshot, 0, len(rows))
	for _, row := range rows {
		var snap news.Snapshot
		if err := json.Unmarshal([]byte(row.Payload), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", row.FetchedAt, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
