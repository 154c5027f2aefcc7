//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	ac "github.com/panyam/authcore"
)

// AccountModel is the GORM model for accounts. Token columns are nullable
// so the unique indexes only constrain live tokens.
type AccountModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	Email        string `gorm:"size:255;not null;uniqueIndex"`
	Name         string `gorm:"size:255;not null"`
	Avatar       string `gorm:"size:1024"`
	PasswordHash string `gorm:"size:255"`
	IsVerified   bool   `gorm:"not null;default:false"`

	VerificationToken       *string `gorm:"size:128;uniqueIndex"`
	VerificationTokenExpiry *time.Time
	ResetPasswordToken      *string    `gorm:"size:128;uniqueIndex"`
	ResetPasswordExpiry     *time.Time `gorm:"index"`

	PasswordChangedAt *time.Time
	Providers         []ProviderModel `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (AccountModel) TableName() string {
	return "accounts"
}

// ProviderModel links an account to one provider. The composite key keeps
// at most one entry per provider name per account.
type ProviderModel struct {
	AccountID  string    `gorm:"primaryKey;size:64"`
	Name       string    `gorm:"primaryKey;size:32"`
	ProviderID string    `gorm:"size:255;not null;index"`
	Position   int       `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ProviderModel) TableName() string {
	return "account_providers"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// utc keeps stored timestamps in one zone so range filters compare
// correctly on dialects that store times as text.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ToAccount converts the model (with Providers preloaded) to the domain type.
func (m *AccountModel) ToAccount() *ac.Account {
	a := &ac.Account{
		ID:                      m.ID,
		Email:                   m.Email,
		Name:                    m.Name,
		Avatar:                  m.Avatar,
		PasswordHash:            m.PasswordHash,
		IsVerified:              m.IsVerified,
		VerificationToken:       deref(m.VerificationToken),
		VerificationTokenExpiry: m.VerificationTokenExpiry,
		ResetPasswordToken:      deref(m.ResetPasswordToken),
		ResetPasswordExpiry:     m.ResetPasswordExpiry,
		PasswordChangedAt:       m.PasswordChangedAt,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
		Providers:               make([]ac.Provider, 0, len(m.Providers)),
	}
	for _, p := range m.Providers {
		a.Providers = append(a.Providers, ac.Provider{Name: p.Name, ProviderID: p.ProviderID})
	}
	return a
}

// AccountToModel converts a domain account for persistence.
func AccountToModel(a *ac.Account) *AccountModel {
	m := &AccountModel{
		ID:                      a.ID,
		Email:                   ac.NormalizeEmail(a.Email),
		Name:                    a.Name,
		Avatar:                  a.Avatar,
		PasswordHash:            a.PasswordHash,
		IsVerified:              a.IsVerified,
		VerificationToken:       nullable(a.VerificationToken),
		VerificationTokenExpiry: utc(a.VerificationTokenExpiry),
		ResetPasswordToken:      nullable(a.ResetPasswordToken),
		ResetPasswordExpiry:     utc(a.ResetPasswordExpiry),
		PasswordChangedAt:       utc(a.PasswordChangedAt),
		CreatedAt:               a.CreatedAt.UTC(),
		UpdatedAt:               a.UpdatedAt,
	}
	m.Providers = providerModels(a)
	return m
}

func providerModels(a *ac.Account) []ProviderModel {
	out := make([]ProviderModel, 0, len(a.Providers))
	for i, p := range a.Providers {
		out = append(out, ProviderModel{AccountID: a.ID, Name: p.Name, ProviderID: p.ProviderID, Position: i})
	}
	return out
}
