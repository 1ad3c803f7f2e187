package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptStore is a fixed-window counter kept in Postgres. Keys are
// expected to be hashed by the caller.
type AttemptStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

type rateLimitRepository struct {
	pool *pgxpool.Pool
}

func NewRateLimitRepository(pool *pgxpool.Pool) AttemptStore {
	return &rateLimitRepository{pool: pool}
}

func (r *rateLimitRepository) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	now := time.Now()
	const q = `
		INSERT INTO rate_limits (rl_key, count, window_start, expires_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (rl_key) DO UPDATE SET
			count = CASE
				WHEN rate_limits.expires_at <= $2 THEN 1
				ELSE rate_limits.count + 1
			END,
			window_start = CASE
				WHEN rate_limits.expires_at <= $2 THEN $2
				ELSE rate_limits.window_start
			END,
			expires_at = CASE
				WHEN rate_limits.expires_at <= $2 THEN $3
				ELSE rate_limits.expires_at
			END
		RETURNING count`

	var count int64
	if err := r.pool.QueryRow(ctx, q, key, now, now.Add(window)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Count returns the live count for key, zero once its window has passed.
func (r *rateLimitRepository) Count(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	const q = `SELECT count FROM rate_limits WHERE rl_key = $1 AND expires_at > now()`
	var count int64
	err := r.pool.QueryRow(ctx, q, key).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

func (r *rateLimitRepository) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, `DELETE FROM rate_limits WHERE rl_key = $1`, key)
	return err
}

func (r *rateLimitRepository) CleanupExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM rate_limits WHERE expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

var _ AttemptStore = (*rateLimitRepository)(nil)
