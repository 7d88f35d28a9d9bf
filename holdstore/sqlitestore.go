package holdstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/decred/hodlvoice/hodlstate"

	_ "modernc.org/sqlite"
)

const (
	// SQLiteDBFilename is the file name of the sqlite store inside its
	// directory.
	SQLiteDBFilename = "hodlvoice.sqlite"

	maxBusyTimeoutMs = 5000
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS hold_records (
	namespace  TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	state      TEXT    NOT NULL,
	generation INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, id)
)`

// SQLiteStore keeps decision records in a local sqlite database. Conditional
// statements and affected row counts provide the write semantics.
type SQLiteStore struct {
	db *sql.DB
}

// A compile time check to ensure SQLiteStore implements the Store interface.
var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens, creating if needed, the sqlite store in dir.
func OpenSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, SQLiteDBFilename)
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(path)))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	pragma := fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)
	if _, err := db.Exec(pragma); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Infof("Opened sqlite decision store at %s", path)

	return &SQLiteStore{db: db}, nil
}

// Lookup implements Store.
func (s *SQLiteStore) Lookup(ctx context.Context, id string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, state, generation
		FROM hold_records WHERE namespace = ? AND id = ?`,
		Namespace, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Value, &r.Generation); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, id string,
	state hodlstate.State) error {

	res, err := s.db.ExecContext(ctx, `INSERT INTO hold_records
		(namespace, id, state, generation, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (namespace, id) DO NOTHING`,
		Namespace, id, state.String(), time.Now().Unix())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordExists, id)
	}
	return nil
}

// Replace implements Store.
func (s *SQLiteStore) Replace(ctx context.Context, id string,
	state hodlstate.State) error {

	res, err := s.db.ExecContext(ctx, `UPDATE hold_records
		SET state = ?, generation = generation + 1, updated_at = ?
		WHERE namespace = ? AND id = ?`,
		state.String(), time.Now().Unix(), Namespace, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// ReplaceIf implements Store.
func (s *SQLiteStore) ReplaceIf(ctx context.Context, id string,
	generation uint64, state hodlstate.State) error {

	res, err := s.db.ExecContext(ctx, `UPDATE hold_records
		SET state = ?, generation = generation + 1, updated_at = ?
		WHERE namespace = ? AND id = ? AND generation = ?`,
		state.String(), time.Now().Unix(), Namespace, id, generation)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Tell a missing record apart from a concurrent modification.
	records, err := s.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return fmt.Errorf("%w: %s at %d, expected %d", ErrGenerationMismatch,
		id, records[0].Generation, generation)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
