// Package token mints opaque base-62 tokens for assessment links, session
// tokens, and numeric one-time codes.
package token

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// LinkLength is the length of a public assessment link token.
const LinkLength = 12

// SessionBodyLength is the length of the base-62 body following the session prefix.
const SessionBodyLength = 32

// SessionPrefix is prepended to every session token.
const SessionPrefix = "sess_"

// Base62 returns a random base-62 string of length n.
func Base62(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is unrecoverable for token minting
			panic(err)
		}
		b[i] = alphabet[v.Int64()]
	}
	return string(b)
}

// NewAssessmentLink mints a 12-character public link token. Uniqueness is
// enforced by the caller against the store.
func NewAssessmentLink() string { return Base62(LinkLength) }

// NewSessionToken mints a session token of the form sess_<32 base-62 chars>.
func NewSessionToken() string { return SessionPrefix + Base62(SessionBodyLength) }

// NewOTP mints an n-digit numeric one-time code.
func NewOTP(n int) string {
	digits := make([]byte, n)
	ten := big.NewInt(10)
	for i := range digits {
		v, err := rand.Int(rand.Reader, ten)
		if err != nil {
			panic(err)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits)
}
