package authcore

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Provider names an authentication mechanism linked to an account.
const (
	ProviderLocal     = "local"
	ProviderGoogle    = "google"
	ProviderFacebook  = "facebook"
	ProviderInstagram = "instagram"
	ProviderApple     = "apple"
)

// KnownProviders lists every provider name an account may carry.
var KnownProviders = []string{ProviderLocal, ProviderGoogle, ProviderFacebook, ProviderInstagram, ProviderApple}

// IsKnownProvider reports whether name is one of KnownProviders.
func IsKnownProvider(name string) bool {
	return slices.Contains(KnownProviders, name)
}

// MaxNameLength is the longest display name accepted on an account.
const MaxNameLength = 50

// Provider links an account to one authentication mechanism.
// For the local provider ProviderID is the account email.
type Provider struct {
	Name       string `json:"name"`
	ProviderID string `json:"provider_id"`
}

// Account is the single record per person, keyed by normalized email.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	IsVerified   bool   `json:"is_verified"`

	VerificationToken       string     `json:"verification_token,omitempty"`
	VerificationTokenExpiry *time.Time `json:"verification_token_expiry,omitempty"`
	ResetPasswordToken      string     `json:"reset_password_token,omitempty"`
	ResetPasswordExpiry     *time.Time `json:"reset_password_expiry,omitempty"`

	Providers []Provider `json:"providers"`

	// Advisory only; set one second in the past whenever a hash is written.
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// PublicAccount is the only projection of an Account that leaves the service.
type PublicAccount struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// NormalizeEmail returns the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewLocalAccount builds an unverified account holding a local credential.
func NewLocalAccount(id, email, name, passwordHash string, now time.Time) *Account {
	email = NormalizeEmail(email)
	a := &Account{
		ID:        id,
		Email:     email,
		Name:      strings.TrimSpace(name),
		Providers: []Provider{{Name: ProviderLocal, ProviderID: email}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.SetPasswordHash(passwordHash, now)
	return a
}

// NewFederatedAccount builds a verified, password-less account for a first
// federated sign-in.
func NewFederatedAccount(id string, profile FederatedProfile, now time.Time) *Account {
	email := NormalizeEmail(profile.Email)
	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	if len([]rune(name)) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	return &Account{
		ID:         id,
		Email:      email,
		Name:       name,
		Avatar:     profile.Avatar,
		IsVerified: true,
		Providers:  []Provider{{Name: profile.Provider, ProviderID: profile.ProviderID}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Public returns the externally visible projection.
func (a *Account) Public() PublicAccount {
	return PublicAccount{ID: a.ID, Email: a.Email, Name: a.Name, Avatar: a.Avatar}
}

// HasProvider reports whether a provider with the given name is linked.
func (a *Account) HasProvider(name string) bool {
	return slices.ContainsFunc(a.Providers, func(p Provider) bool { return p.Name == name })
}

// LinkProvider appends the provider unless one with the same name is
// already linked. It reports whether the account changed.
func (a *Account) LinkProvider(name, providerID string) bool {
	if a.HasProvider(name) {
		return false
	}
	a.Providers = append(a.Providers, Provider{Name: name, ProviderID: providerID})
	return true
}

// SetPasswordHash stores a new digest and stamps PasswordChangedAt.
func (a *Account) SetPasswordHash(hash string, now time.Time) {
	a.PasswordHash = hash
	changed := now.Add(-time.Second)
	a.PasswordChangedAt = &changed
}

// SetVerificationToken records a pending email verification.
func (a *Account) SetVerificationToken(token string, expiry time.Time) {
	a.VerificationToken = token
	a.VerificationTokenExpiry = &expiry
}

// ClearVerificationToken drops the pending verification.
func (a *Account) ClearVerificationToken() {
	a.VerificationToken = ""
	a.VerificationTokenExpiry = nil
}

// SetResetToken records a pending reset, superseding any earlier one.
func (a *Account) SetResetToken(token string, expiry time.Time) {
	a.ResetPasswordToken = token
	a.ResetPasswordExpiry = &expiry
}

// ClearResetToken drops the pending reset.
func (a *Account) ClearResetToken() {
	a.ResetPasswordToken = ""
	a.ResetPasswordExpiry = nil
}

// VerificationValid reports whether token is the live verification token at now.
func (a *Account) VerificationValid(token string, now time.Time) bool {
	if token == "" || a.VerificationToken != token || a.VerificationTokenExpiry == nil {
		return false
	}
	return now.Before(*a.VerificationTokenExpiry)
}

// ResetValid reports whether token is the live reset token at now.
func (a *Account) ResetValid(token string, now time.Time) bool {
	if token == "" || a.ResetPasswordToken != token || a.ResetPasswordExpiry == nil {
		return false
	}
	return now.Before(*a.ResetPasswordExpiry)
}

// VerificationLapsed reports whether a is an unverified local sign-up with
// no live verification token at now.
func (a *Account) VerificationLapsed(now time.Time) bool {
	if a.IsVerified || !a.HasProvider(ProviderLocal) {
		return false
	}
	return a.VerificationToken == "" || !a.VerificationValid(a.VerificationToken, now)
}

// Validate checks the structural invariants every persisted account holds.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account id is required")
	}
	if a.Email == "" || a.Email != NormalizeEmail(a.Email) {
		return fmt.Errorf("account email %q is not normalized", a.Email)
	}
	if a.Name == "" {
		return fmt.Errorf("account name is required")
	}
	if len(a.Providers) == 0 {
		return fmt.Errorf("account %s has no providers", a.ID)
	}
	seen := make(map[string]bool, len(a.Providers))
	for _, p := range a.Providers {
		if !IsKnownProvider(p.Name) {
			return fmt.Errorf("unknown provider %q", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %q linked twice", p.Name)
		}
		seen[p.Name] = true
	}
	if (a.PasswordHash != "") != seen[ProviderLocal] {
		return fmt.Errorf("password hash must be present exactly when the local provider is linked")
	}
	if a.VerificationToken != "" && a.VerificationTokenExpiry == nil {
		return fmt.Errorf("verification token without expiry")
	}
	if a.ResetPasswordToken != "" && a.ResetPasswordExpiry == nil {
		return fmt.Errorf("reset token without expiry")
	}
	return nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Providers = slices.Clone(a.Providers)
	out.VerificationTokenExpiry = cloneTime(a.VerificationTokenExpiry)
	out.ResetPasswordExpiry = cloneTime(a.ResetPasswordExpiry)
	out.PasswordChangedAt = cloneTime(a.PasswordChangedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
