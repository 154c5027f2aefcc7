//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	ac "github.com/panyam/authcore"
)

// AccountEntity is the Datastore entity for accounts, keyed by account id.
// Zero times stand for absent expiries.
type AccountEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Email        string         `datastore:"email"`
	Name         string         `datastore:"name,noindex"`
	Avatar       string         `datastore:"avatar,noindex"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	IsVerified   bool           `datastore:"is_verified"`

	VerificationToken       string    `datastore:"verification_token"`
	VerificationTokenExpiry time.Time `datastore:"verification_token_expiry,noindex"`
	ResetPasswordToken      string    `datastore:"reset_password_token"`
	ResetPasswordExpiry     time.Time `datastore:"reset_password_expiry,noindex"`

	Providers         []ProviderEntity `datastore:"providers"`
	PasswordChangedAt time.Time        `datastore:"password_changed_at,noindex"`
	CreatedAt         time.Time        `datastore:"created_at"`
	UpdatedAt         time.Time        `datastore:"updated_at"`
	Version           int              `datastore:"version"`
}

// ProviderEntity is stored inline on the account.
type ProviderEntity struct {
	Name       string `datastore:"name"`
	ProviderID string `datastore:"provider_id"`
}

// AccountEmailEntity claims a normalized email for one account.
// Key is the normalized email.
type AccountEmailEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func fromTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (e *AccountEntity) ToAccount() *ac.Account {
	a := &ac.Account{
		ID:                      e.Key.Name,
		Email:                   e.Email,
		Name:                    e.Name,
		Avatar:                  e.Avatar,
		PasswordHash:            e.PasswordHash,
		IsVerified:              e.IsVerified,
		VerificationToken:       e.VerificationToken,
		VerificationTokenExpiry: fromTime(e.VerificationTokenExpiry),
		ResetPasswordToken:      e.ResetPasswordToken,
		ResetPasswordExpiry:     fromTime(e.ResetPasswordExpiry),
		PasswordChangedAt:       fromTime(e.PasswordChangedAt),
		CreatedAt:               e.CreatedAt,
		UpdatedAt:               e.UpdatedAt,
		Providers:               make([]ac.Provider, 0, len(e.Providers)),
	}
	for _, p := range e.Providers {
		a.Providers = append(a.Providers, ac.Provider{Name: p.Name, ProviderID: p.ProviderID})
	}
	return a
}

func AccountToEntity(a *ac.Account, key *datastore.Key, version int) *AccountEntity {
	e := &AccountEntity{
		Key:                     key,
		Email:                   ac.NormalizeEmail(a.Email),
		Name:                    a.Name,
		Avatar:                  a.Avatar,
		PasswordHash:            a.PasswordHash,
		IsVerified:              a.IsVerified,
		VerificationToken:       a.VerificationToken,
		VerificationTokenExpiry: toTime(a.VerificationTokenExpiry),
		ResetPasswordToken:      a.ResetPasswordToken,
		ResetPasswordExpiry:     toTime(a.ResetPasswordExpiry),
		PasswordChangedAt:       toTime(a.PasswordChangedAt),
		CreatedAt:               a.CreatedAt,
		UpdatedAt:               a.UpdatedAt,
		Version:                 version,
	}
	for _, p := range a.Providers {
		e.Providers = append(e.Providers, ProviderEntity{Name: p.Name, ProviderID: p.ProviderID})
	}
	return e
}
