package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// DBCheck pings the Postgres pool. Nil pool means the check is unconfigured.
func DBCheck(pool *pgxpool.Pool) func(ctx context.Context) error {
	if pool == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
		return nil
	}
}

// RedisCheck pings Redis. Nil client means the check is unconfigured.
func RedisCheck(rdb *redis.Client) func(ctx context.Context) error {
	if rdb == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	}
}

// SandboxCheck verifies the code sandbox answers its language catalog.
func SandboxCheck(sb domain.SandboxClient) func(ctx context.Context) error {
	if sb == nil {
		return nil
	}
	return func(ctx context.Context) error {
		langs, err := sb.Languages(ctx)
		if err != nil {
			return fmt.Errorf("sandbox languages: %w", err)
		}
		if len(langs) == 0 {
			return fmt.Errorf("sandbox reports no languages")
		}
		return nil
	}
}
