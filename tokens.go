package authcore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenType distinguishes the two single-use account tokens.
type TokenType string

const (
	TokenTypeEmailVerification TokenType = "email_verification"
	TokenTypePasswordReset     TokenType = "password_reset"
)

// Default token lifetimes.
const (
	TokenExpiryEmailVerification = 24 * time.Hour
	TokenExpiryPasswordReset     = 1 * time.Hour
)

// tokenBytes is the entropy of every issued token (256 bits).
const tokenBytes = 32

// GenerateSecureToken returns 32 random bytes, hex encoded.
func GenerateSecureToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// TokenIssuer mints tokens and stamps their expiry according to type.
type TokenIssuer struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	Now             func() time.Time
}

func NewTokenIssuer() *TokenIssuer {
	return (&TokenIssuer{}).EnsureDefaults()
}

func (t *TokenIssuer) EnsureDefaults() *TokenIssuer {
	if t.VerificationTTL <= 0 {
		t.VerificationTTL = TokenExpiryEmailVerification
	}
	if t.ResetTTL <= 0 {
		t.ResetTTL = TokenExpiryPasswordReset
	}
	if t.Now == nil {
		t.Now = time.Now
	}
	return t
}

// Issue returns a fresh token and its absolute expiry.
func (t *TokenIssuer) Issue(kind TokenType) (string, time.Time, error) {
	var ttl time.Duration
	switch kind {
	case TokenTypeEmailVerification:
		ttl = t.VerificationTTL
	case TokenTypePasswordReset:
		ttl = t.ResetTTL
	default:
		return "", time.Time{}, fmt.Errorf("unknown token type %q", kind)
	}
	token, err := GenerateSecureToken()
	if err != nil {
		return "", time.Time{}, err
	}
	return token, t.Now().Add(ttl), nil
}
