package chain

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chain_entries (
	session   TEXT    NOT NULL,
	seq       INTEGER NOT NULL,
	prev_hash TEXT    NOT NULL,
	hash      TEXT    NOT NULL,
	salt      TEXT    NOT NULL,
	ts        TEXT    NOT NULL,
	digest    TEXT    NOT NULL,
	snapshot  TEXT    NOT NULL,
	PRIMARY KEY (session, seq)
);
`

// SQLiteStore keeps entries in a SQLite database in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("chain: create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chain: open sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("chain: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("chain: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chain_entries (session, seq, prev_hash, hash, salt, ts, digest, snapshot)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Session, e.Seq, e.PrevHash, e.Hash, e.Salt, e.Timestamp, e.Digest, string(e.Snapshot))
	if err != nil {
		return fmt.Errorf("chain: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, session string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session, seq, prev_hash, hash, salt, ts, digest, snapshot
		 FROM chain_entries WHERE session = ? ORDER BY seq`, session)
	if err != nil {
		return nil, fmt.Errorf("chain: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var snap string
		if err := rows.Scan(&e.Session, &e.Seq, &e.PrevHash, &e.Hash, &e.Salt, &e.Timestamp, &e.Digest, &snap); err != nil {
			return nil, fmt.Errorf("chain: scan: %w", err)
		}
		e.Snapshot = []byte(snap)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session FROM chain_entries ORDER BY session`)
	if err != nil {
		return nil, fmt.Errorf("chain: query sessions: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("chain: scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Exec runs a raw statement. It exists for integrity drills.
func (s *SQLiteStore) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
