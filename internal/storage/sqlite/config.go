package sqlite

import (
	"context"
	"database/sql"
)

type configRepo struct{ s *Store }

func (r configRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.s.q().QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, wrapDBErrorf(err, "get config %q", key)
}

func (r configRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.s.q().ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return wrapDBErrorf(err, "set config %q", key)
}
