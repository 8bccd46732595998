// Package otpstore implements one-time-code issuance and verification on
// Redis with TTL expiry and bounded attempts.
package otpstore

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
	"github.com/fairyhunter13/ai-assessment-engine/pkg/token"
)

// CodeLength is the number of digits in an issued code.
const CodeLength = 6

// Store keeps codes in Redis under otp:{purpose}:{email}. Issuing a new code
// overwrites the previous one, so at most one code per (email, purpose) is
// ever live.
type Store struct {
	rdb         *redis.Client
	maxAttempts int
}

// New constructs a Store. maxAttempts <= 0 falls back to 5.
func New(rdb *redis.Client, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Store{rdb: rdb, maxAttempts: maxAttempts}
}

func key(email, purpose string) string {
	return "otp:" + purpose + ":" + strings.ToLower(email)
}

func attemptsKey(email, purpose string) string {
	return "otp_attempts:" + purpose + ":" + strings.ToLower(email)
}

// Issue generates a fresh code with the given TTL and returns it. Any prior
// code and its attempt counter are invalidated.
func (s *Store) Issue(ctx domain.Context, email, purpose string, ttl time.Duration) (string, error) {
	code := token.NewOTP(CodeLength)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(email, purpose), code, ttl)
	pipe.Del(ctx, attemptsKey(email, purpose))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("op=otp.issue: %w", err)
	}
	return code, nil
}

// Verify checks the code. Wrong, expired, and attempt-exhausted codes all
// return ErrAuthInvalid so callers surface a single generic message. A
// successful verify consumes the code.
func (s *Store) Verify(ctx domain.Context, email, purpose, code string) error {
	k := key(email, purpose)
	stored, err := s.rdb.Get(ctx, k).Result()
	if err == redis.Nil {
		return fmt.Errorf("op=otp.verify: no live code: %w", domain.ErrAuthInvalid)
	}
	if err != nil {
		return fmt.Errorf("op=otp.verify: %w", err)
	}

	ak := attemptsKey(email, purpose)
	attempts, err := s.rdb.Incr(ctx, ak).Result()
	if err != nil {
		return fmt.Errorf("op=otp.verify: %w", err)
	}
	if attempts == 1 {
		// attempts die with the code
		if ttl, err := s.rdb.TTL(ctx, k).Result(); err == nil && ttl > 0 {
			_ = s.rdb.Expire(ctx, ak, ttl).Err()
		}
	}
	if attempts > int64(s.maxAttempts) {
		_ = s.rdb.Del(ctx, k, ak).Err()
		return fmt.Errorf("op=otp.verify: attempts exhausted: %w", domain.ErrAuthInvalid)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return fmt.Errorf("op=otp.verify: mismatch: %w", domain.ErrAuthInvalid)
	}
	if err := s.rdb.Del(ctx, k, ak).Err(); err != nil {
		return fmt.Errorf("op=otp.verify: %w", err)
	}
	return nil
}
