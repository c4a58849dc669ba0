// Package persist is the rehydration cache: a single sqlite file holding the bearer
// token and a JSON snapshot of the session and task collection.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	FileName = "state.sqlite"

	keyToken = "token"
	keyRoot  = "root"
)

// DB is a small key-value table. Safe for concurrent use.
type DB struct {
	db   *sql.DB
	path string
}

// Open creates dir if needed and opens (or creates) the state file inside it.
func Open(ctx context.Context, dir string) (*DB, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("persist: state dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, FileName)
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL,
		updated_at_unixms INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persist: migrate: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

func (d *DB) Path() string { return d.path }

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// get returns "" and no error for a missing key.
func (d *DB) get(ctx context.Context, k string) (string, error) {
	var v string
	err := d.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, k).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (d *DB) put(ctx context.Context, k, v string) error {
	_, err := d.db.ExecContext(ctx, `INSERT OR REPLACE INTO kv(k, v, updated_at_unixms) VALUES(?, ?, ?)`, k, v, time.Now().UnixMilli())
	return err
}

func (d *DB) del(ctx context.Context, k string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, k)
	return err
}

// Tokens adapts the token slot to session.TokenStore. Only the session store writes it.
type Tokens struct{ DB *DB }

func (t Tokens) LoadToken() (string, error) {
	return t.DB.get(context.Background(), keyToken)
}

func (t Tokens) SaveToken(token string) error {
	return t.DB.put(context.Background(), keyToken, token)
}

func (t Tokens) DeleteToken() error {
	return t.DB.del(context.Background(), keyToken)
}
