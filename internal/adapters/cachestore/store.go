// Package cachestore persists fetched telemetry snapshots between runs.
//
// Entries are content-addressed by source id: one row per source holding the
// latest payload and its retrieval timestamp. Only the fetch coordinator
// reads or writes this store.
package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relaywatch/relaywatch/internal/domain/model"
)

// Entry is one cached snapshot for a source.
type Entry struct {
	SourceID  model.SourceID
	Payload   []byte
	FetchedAt time.Time
}

// Fresh reports whether the entry's age at now is within bound. An entry
// exactly at the bound still counts as fresh.
func (e Entry) Fresh(now time.Time, bound time.Duration) bool {
	return now.Sub(e.FetchedAt) <= bound
}

// Store is a sqlite-backed snapshot cache. A single-connection write handle
// avoids sqlite write contention; reads go through a separate handle.
type Store struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// Open creates or opens the cache database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening read db: %w", err)
	}

	s := &Store{readDB: readDB, writeDB: writeDB}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			source_id  TEXT PRIMARY KEY,
			payload    BLOB NOT NULL,
			fetched_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close releases both database handles.
func (s *Store) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// Get returns the cached entry for a source; ok is false when none exists.
func (s *Store) Get(ctx context.Context, id model.SourceID) (Entry, bool, error) {
	var (
		payload   []byte
		fetchedAt time.Time
	)
	err := s.readDB.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM snapshots WHERE source_id = ?`, string(id),
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("querying snapshot %s: %w", id, err)
	}
	return Entry{SourceID: id, Payload: payload, FetchedAt: fetchedAt.UTC()}, true, nil
}

// Put stores or replaces the entry for a source.
func (s *Store) Put(ctx context.Context, id model.SourceID, payload []byte, fetchedAt time.Time) error {
	_, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO snapshots (source_id, payload, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at
	`, string(id), payload, fetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("upserting snapshot %s: %w", id, err)
	}
	return nil
}

// Touch renews the retrieval timestamp without replacing the payload. Used
// after a conditional fetch confirms the upstream document is unchanged.
func (s *Store) Touch(ctx context.Context, id model.SourceID, fetchedAt time.Time) error {
	res, err := s.writeDB.ExecContext(ctx,
		`UPDATE snapshots SET fetched_at = ? WHERE source_id = ?`, fetchedAt.UTC(), string(id))
	if err != nil {
		return fmt.Errorf("touching snapshot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touching snapshot %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
