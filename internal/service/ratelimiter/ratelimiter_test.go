package ratelimiter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, buckets map[string]BucketConfig) *RedisLuaLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLuaLimiter(rdb, buckets)
}

func TestNewBucketConfigFromPerMinute(t *testing.T) {
	cfg := NewBucketConfigFromPerMinute(60)
	assert.EqualValues(t, 60, cfg.Capacity)
	assert.Equal(t, 1.0, cfg.RefillRate)

	zero := NewBucketConfigFromPerMinute(0)
	assert.Zero(t, zero.Capacity)
}

func TestAllow_ExhaustsBucket(t *testing.T) {
	l := newTestLimiter(t, map[string]BucketConfig{
		"otp_resend": {Capacity: 2, RefillRate: 0.01},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx, "otp_resend:dev@example.com", 1)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i)
	}

	allowed, retryAfter, err := l.Allow(ctx, "otp_resend:dev@example.com", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Positive(t, retryAfter)
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, map[string]BucketConfig{
		"otp_resend": {Capacity: 1, RefillRate: 0.01},
	})
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "otp_resend:a@example.com", 1)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, err = l.Allow(ctx, "otp_resend:a@example.com", 1)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, err = l.Allow(ctx, "otp_resend:b@example.com", 1)
	require.NoError(t, err)
	assert.True(t, allowed, "another email has its own bucket")
}

func TestAllow_UnconfiguredKeyPasses(t *testing.T) {
	l := newTestLimiter(t, nil)
	allowed, _, err := l.Allow(context.Background(), "anything:at-all", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllow_NilLimiterPasses(t *testing.T) {
	var l *RedisLuaLimiter
	allowed, _, err := l.Allow(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSetBucketConfig(t *testing.T) {
	l := newTestLimiter(t, nil)
	l.SetBucketConfig("code_run", BucketConfig{Capacity: 1, RefillRate: 0.01})

	allowed, _, err := l.Allow(context.Background(), "code_run:ca-1", 1)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, err = l.Allow(context.Background(), "code_run:ca-1", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
}
