package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/clipkeep/dbopen"
)

// Schema is the DDL for the kv table.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// SQLite stores values in a kv table. Update runs inside one transaction via
// dbopen.RunTx, so concurrent processes sharing the file cannot lose updates.
type SQLite struct {
	DB *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies Schema.
func OpenSQLite(path string, opts ...dbopen.Option) (*SQLite, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &SQLite{DB: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.DB.ExecContext(ctx, upsert, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var old []byte
		found := true
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&old)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
		} else if err != nil {
			return fmt.Errorf("kv: read %s: %w", key, err)
		}

		value, write, err := fn(old, found)
		if err != nil || !write {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsert, key, value, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("kv: write %s: %w", key, err)
		}
		return nil
	})
}

func (s *SQLite) Close() error {
	return s.DB.Close()
}

const upsert = `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
