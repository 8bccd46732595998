package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase62Alphabet(t *testing.T) {
	s := Base62(256)
	require.Len(t, s, 256)
	for _, r := range s {
		assert.Contains(t, alphabet, string(r))
	}
}

func TestNewSessionToken(t *testing.T) {
	tok := NewSessionToken()
	assert.True(t, strings.HasPrefix(tok, SessionPrefix))
	assert.Len(t, tok, len(SessionPrefix)+SessionBodyLength)
	assert.NotEqual(t, tok, NewSessionToken())
}

func TestNewAssessmentLink(t *testing.T) {
	link := NewAssessmentLink()
	assert.Len(t, link, LinkLength)
	assert.NotContains(t, link, "_")
}

func TestNewOTP(t *testing.T) {
	otp := NewOTP(6)
	require.Len(t, otp, 6)
	for _, r := range otp {
		assert.True(t, r >= '0' && r <= '9', "digit expected, got %q", r)
	}
}
