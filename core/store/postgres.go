package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type postgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// Compile-time check that postgresStore implements Store.
var _ Store = (*postgresStore)(nil)

// NewPostgres wraps a sqlx connection pool as a Store backed by the
// dialogue_states table. Expiry is lazy: expired rows are ignored on read
// and removed on the next write or delete for the same key.
func NewPostgres(db *sqlx.DB) Store {
	return &postgresStore{db: db, now: time.Now}
}

func (p *postgresStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *postgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row struct {
		Value     []byte       `db:"value"`
		ExpiresAt sql.NullTime `db:"expires_at"`
	}
	err := p.db.GetContext(ctx, &row,
		`SELECT value, expires_at FROM dialogue_states WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("pg get %s: %w", key, err)
	}
	if row.ExpiresAt.Valid && p.now().After(row.ExpiresAt.Time) {
		return nil, false, nil
	}
	return row.Value, true, nil
}

func (p *postgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: p.now().Add(ttl), Valid: true}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO dialogue_states (key, value, expires_at, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("pg set %s: %w", key, err)
	}
	return nil
}

func (p *postgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM dialogue_states WHERE key = $1`, key); err != nil {
		return fmt.Errorf("pg delete %s: %w", key, err)
	}
	return nil
}
