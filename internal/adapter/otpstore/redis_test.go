package otpstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

func newTestStore(t *testing.T, maxAttempts int) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, maxAttempts), mr
}

func TestIssueAndVerify(t *testing.T) {
	s, _ := newTestStore(t, 5)
	ctx := context.Background()

	code, err := s.Issue(ctx, "dev@example.com", "email_verify", 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, code, CodeLength)

	require.NoError(t, s.Verify(ctx, "dev@example.com", "email_verify", code))

	// consumed: a second verify with the same code fails
	err = s.Verify(ctx, "dev@example.com", "email_verify", code)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestVerify_WrongCode(t *testing.T) {
	s, _ := newTestStore(t, 5)
	ctx := context.Background()

	code, err := s.Issue(ctx, "dev@example.com", "email_verify", 10*time.Minute)
	require.NoError(t, err)

	err = s.Verify(ctx, "dev@example.com", "email_verify", "000000")
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)

	// right code still works after one failed attempt
	require.NoError(t, s.Verify(ctx, "dev@example.com", "email_verify", code))
}

func TestVerify_Expired(t *testing.T) {
	s, mr := newTestStore(t, 5)
	ctx := context.Background()

	code, err := s.Issue(ctx, "dev@example.com", "email_verify", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	err = s.Verify(ctx, "dev@example.com", "email_verify", code)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestVerify_AttemptsExhausted(t *testing.T) {
	s, _ := newTestStore(t, 2)
	ctx := context.Background()

	code, err := s.Issue(ctx, "dev@example.com", "email_verify", 10*time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Verify(ctx, "dev@example.com", "email_verify", "111111"), domain.ErrAuthInvalid)
	assert.ErrorIs(t, s.Verify(ctx, "dev@example.com", "email_verify", "222222"), domain.ErrAuthInvalid)

	// the correct code is dead now: counter crossed the cap and deleted it
	err = s.Verify(ctx, "dev@example.com", "email_verify", code)
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestIssue_InvalidatesPriorCode(t *testing.T) {
	s, _ := newTestStore(t, 5)
	ctx := context.Background()

	first, err := s.Issue(ctx, "dev@example.com", "email_verify", 10*time.Minute)
	require.NoError(t, err)
	second, err := s.Issue(ctx, "dev@example.com", "email_verify", 10*time.Minute)
	require.NoError(t, err)

	if first != second {
		assert.ErrorIs(t, s.Verify(ctx, "dev@example.com", "email_verify", first), domain.ErrAuthInvalid)
	}
	require.NoError(t, s.Verify(ctx, "dev@example.com", "email_verify", second))
}

func TestPurposesAreIsolated(t *testing.T) {
	s, _ := newTestStore(t, 5)
	ctx := context.Background()

	verify, err := s.Issue(ctx, "dev@example.com", "email_verify", 10*time.Minute)
	require.NoError(t, err)
	_, err = s.Issue(ctx, "dev@example.com", "resume_retry", 10*time.Minute)
	require.NoError(t, err)

	// issuing for another purpose must not clobber the first
	require.NoError(t, s.Verify(ctx, "dev@example.com", "email_verify", verify))
}
