package authcore_test

import (
	"strings"
	"testing"
	"time"

	ac "github.com/panyam/authcore"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewLocalAccount(t *testing.T) {
	a := ac.NewLocalAccount("id-1", " Zoe@Example.com ", " Zoe ", "digest", t0)
	if a.Email != "zoe@example.com" || a.Name != "Zoe" {
		t.Errorf("account = %+v", a)
	}
	if a.IsVerified {
		t.Error("local accounts start unverified")
	}
	if len(a.Providers) != 1 || a.Providers[0].ProviderID != "zoe@example.com" {
		t.Errorf("providers = %+v", a.Providers)
	}
	if a.PasswordChangedAt == nil || !a.PasswordChangedAt.Equal(t0.Add(-time.Second)) {
		t.Errorf("PasswordChangedAt = %v", a.PasswordChangedAt)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestNewFederatedAccountName(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		want    string
	}{
		{"kept", "Yan", "Yan"},
		{"trimmed", "  Yan  ", "Yan"},
		{"fallback", "", "yan.li"},
		{"truncated", strings.Repeat("é", 60), strings.Repeat("é", ac.MaxNameLength)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := ac.NewFederatedAccount("id", ac.FederatedProfile{
				Provider: ac.ProviderGoogle, ProviderID: "g", Email: "Yan.Li@example.com", Name: tc.profile,
			}, t0)
			if a.Name != tc.want {
				t.Errorf("name = %q, want %q", a.Name, tc.want)
			}
			if err := a.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestLinkProviderIsIdempotent(t *testing.T) {
	a := ac.NewLocalAccount("id", "x@example.com", "X", "digest", t0)
	if !a.LinkProvider(ac.ProviderGoogle, "g-1") {
		t.Error("first link reported no change")
	}
	if a.LinkProvider(ac.ProviderGoogle, "g-2") {
		t.Error("second link of the same provider reported a change")
	}
	if len(a.Providers) != 2 || a.Providers[1].ProviderID != "g-1" {
		t.Errorf("providers = %+v", a.Providers)
	}
}

func TestAccountValidate(t *testing.T) {
	expiry := t0.Add(time.Hour)
	tests := []struct {
		name   string
		mutate func(a *ac.Account)
		ok     bool
	}{
		{"valid", func(a *ac.Account) {}, true},
		{"missing id", func(a *ac.Account) { a.ID = "" }, false},
		{"unnormalized email", func(a *ac.Account) { a.Email = "X@example.com" }, false},
		{"no providers", func(a *ac.Account) { a.Providers = nil }, false},
		{"unknown provider", func(a *ac.Account) { a.LinkProvider("myspace", "1") }, false},
		{"duplicate provider", func(a *ac.Account) {
			a.Providers = append(a.Providers, ac.Provider{Name: ac.ProviderLocal, ProviderID: "x"})
		}, false},
		{"local without hash", func(a *ac.Account) { a.PasswordHash = "" }, false},
		{"hash without local", func(a *ac.Account) {
			a.Providers = []ac.Provider{{Name: ac.ProviderGoogle, ProviderID: "g"}}
		}, false},
		{"token without expiry", func(a *ac.Account) { a.VerificationToken = "abc" }, false},
		{"reset without expiry", func(a *ac.Account) { a.ResetPasswordToken = "abc" }, false},
		{"reset with expiry", func(a *ac.Account) { a.SetResetToken("abc", expiry) }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := ac.NewLocalAccount("id", "x@example.com", "X", "digest", t0)
			tc.mutate(a)
			if err := a.Validate(); (err == nil) != tc.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestTokenValidity(t *testing.T) {
	a := ac.NewLocalAccount("id", "x@example.com", "X", "digest", t0)
	a.SetVerificationToken("vtok", t0.Add(time.Hour))
	a.SetResetToken("rtok", t0.Add(time.Hour))

	if !a.VerificationValid("vtok", t0) || !a.ResetValid("rtok", t0) {
		t.Error("live tokens reported invalid")
	}
	if a.VerificationValid("rtok", t0) || a.ResetValid("vtok", t0) {
		t.Error("tokens accepted for the wrong purpose")
	}
	if a.VerificationValid("", t0) || a.ResetValid("", t0) {
		t.Error("empty token accepted")
	}
	at := t0.Add(time.Hour)
	if a.VerificationValid("vtok", at) || a.ResetValid("rtok", at) {
		t.Error("token accepted at its expiry")
	}

	a.ClearResetToken()
	a.ClearVerificationToken()
	if a.ResetValid("rtok", t0) || a.VerificationValid("vtok", t0) {
		t.Error("cleared tokens still valid")
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := ac.NewLocalAccount("id", "x@example.com", "X", "digest", t0)
	a.SetResetToken("rtok", t0.Add(time.Hour))
	c := a.Clone()

	c.LinkProvider(ac.ProviderGoogle, "g")
	*c.ResetPasswordExpiry = t0
	if len(a.Providers) != 1 {
		t.Error("clone shares providers")
	}
	if !a.ResetPasswordExpiry.Equal(t0.Add(time.Hour)) {
		t.Error("clone shares reset expiry")
	}
}

func TestPublicProjection(t *testing.T) {
	a := ac.NewLocalAccount("id", "x@example.com", "X", "digest", t0)
	a.Avatar = "https://img.test/x.png"
	got := a.Public()
	want := ac.PublicAccount{ID: "id", Email: "x@example.com", Name: "X", Avatar: "https://img.test/x.png"}
	if got != want {
		t.Errorf("Public() = %+v, want %+v", got, want)
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		code     string
	}{
		{"", ac.ErrCodeMissingField},
		{"abc1", ac.ErrCodeWeakPassword},
		{"abcdefgh", ac.ErrCodeWeakPassword},
		{"12345678", ac.ErrCodeWeakPassword},
		{"abcdefg1", ""},
		{"pässwört9", ""},
	}
	for _, tc := range tests {
		err := ac.ValidatePassword(tc.password)
		if tc.code == "" {
			if err != nil {
				t.Errorf("ValidatePassword(%q) = %v", tc.password, err)
			}
			continue
		}
		authErr, ok := err.(*ac.AuthError)
		if !ok || authErr.Code != tc.code || authErr.Field != "password" {
			t.Errorf("ValidatePassword(%q) = %v, want code %s", tc.password, err, tc.code)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	for _, email := range []string{"a@b.co", " Mixed@Case.ORG ", "first.last+tag@sub.example.com"} {
		if err := ac.ValidateEmail(email); err != nil {
			t.Errorf("ValidateEmail(%q) = %v", email, err)
		}
	}
	for _, email := range []string{"", "plain", "a@b", "a b@c.com", "@example.com"} {
		if err := ac.ValidateEmail(email); err == nil {
			t.Errorf("ValidateEmail(%q) accepted", email)
		}
	}
}
