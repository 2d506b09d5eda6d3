package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const createKVTable = `
	CREATE TABLE IF NOT EXISTS h2h_kv (
		key        TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

type postgresKV struct {
	db *sql.DB
}

func NewPostgresKV(ctx context.Context, databaseURL string) (KV, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(pctx, createKVTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create h2h_kv: %w", err)
	}
	return &postgresKV{db: db}, nil
}

func (p *postgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM h2h_kv WHERE key = $1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select h2h_kv: %w", err)
	}
	return v, nil
}

func (p *postgresKV) Set(ctx context.Context, key string, val []byte) error {
	return upsertKV(ctx, p.db, key, val)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertKV(ctx context.Context, db execer, key string, val []byte) error {
	const q = `
		INSERT INTO h2h_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := db.ExecContext(ctx, q, key, val); err != nil {
		return fmt.Errorf("upsert h2h_kv: %w", err)
	}
	return nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (p *postgresKV) Update(ctx context.Context, key string, fn UpdateFunc) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Make sure a row exists so FOR UPDATE has something to lock.
	if _, err = tx.ExecContext(ctx, `INSERT INTO h2h_kv (key, value) VALUES ($1, ''::bytea) ON CONFLICT (key) DO NOTHING`, key); err != nil {
		return fmt.Errorf("seed h2h_kv: %w", err)
	}
	var cur []byte
	if err = tx.QueryRowContext(ctx, `SELECT value FROM h2h_kv WHERE key = $1 FOR UPDATE`, key).Scan(&cur); err != nil {
		return fmt.Errorf("lock h2h_kv: %w", err)
	}
	if len(cur) == 0 {
		cur = nil
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	if err = upsertKV(ctx, tx, key, next); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *postgresKV) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
