// Package client is a Go SDK for the authcore HTTP endpoints. It keeps the
// server session cookie across calls and can persist it between process
// runs through a SessionStore.
package client

import (
	"time"
)

// SessionCredential is the persisted session for a single server.
type SessionCredential struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the cookie has passed its expiry. A zero expiry
// never expires on the client side; the server decides.
func (c *SessionCredential) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// SessionStore persists session credentials keyed by server URL.
type SessionStore interface {
	// GetSession returns nil, nil if no session exists for the server
	GetSession(serverURL string) (*SessionCredential, error)

	SetSession(serverURL string, cred *SessionCredential) error

	RemoveSession(serverURL string) error

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}
