// Package storetest holds the behaviour every CredentialStore backend must
// show. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	ac "github.com/panyam/authcore"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) ac.CredentialStore

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ac.CredentialStore)
	}{
		{"CreateAndFind", testCreateAndFind},
		{"DuplicateEmail", testDuplicateEmail},
		{"NotFound", testNotFound},
		{"VerificationTokenLookup", testVerificationTokenLookup},
		{"ResetTokenExpiry", testResetTokenExpiry},
		{"UpdateAppliesMutation", testUpdateAppliesMutation},
		{"UpdateAbortsOnError", testUpdateAbortsOnError},
		{"UpdateRejectsBrokenInvariant", testUpdateRejectsBrokenInvariant},
		{"ConsumedTokenNotFound", testConsumedTokenNotFound},
		{"SaveOverwrites", testSaveOverwrites},
		{"SaveUnknownAccount", testSaveUnknownAccount},
		{"ReturnsCopies", testReturnsCopies},
		{"RejectsInvalidAccount", testRejectsInvalidAccount},
		{"ConcurrentCreateSameEmail", testConcurrentCreateSameEmail},
		{"ConcurrentLinkNoLostUpdate", testConcurrentLink},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewLocal returns a valid unverified local account.
func NewLocal(id, email string) *ac.Account {
	return ac.NewLocalAccount(id, email, "Test User", "$2a$04$digest", testNow)
}

func mustToken(t *testing.T) string {
	t.Helper()
	tok, err := ac.GenerateSecureToken()
	if err != nil {
		t.Fatalf("GenerateSecureToken: %v", err)
	}
	return tok
}

func mustCreate(t *testing.T, s ac.CredentialStore, a *ac.Account) {
	t.Helper()
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("Create(%s): %v", a.Email, err)
	}
}

func testCreateAndFind(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	mustCreate(t, s, NewLocal("acct-1", "Alice@Example.com"))

	byID, err := s.FindByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID.Email != "alice@example.com" {
		t.Errorf("stored email = %q, want normalized", byID.Email)
	}
	if !byID.HasProvider(ac.ProviderLocal) || byID.PasswordHash == "" {
		t.Errorf("local credential not persisted: %+v", byID)
	}

	byEmail, err := s.FindByEmail(ctx, "  ALICE@example.COM ")
	if err != nil {
		t.Fatalf("FindByEmail with different case: %v", err)
	}
	if byEmail.ID != "acct-1" {
		t.Errorf("FindByEmail id = %q", byEmail.ID)
	}
}

func testDuplicateEmail(t *testing.T, s ac.CredentialStore) {
	mustCreate(t, s, NewLocal("acct-1", "bob@example.com"))
	err := s.Create(context.Background(), NewLocal("acct-2", "BOB@example.com"))
	if !errors.Is(err, ac.ErrDuplicateEmail) {
		t.Fatalf("second Create err = %v, want ErrDuplicateEmail", err)
	}
	if _, err := s.FindByID(context.Background(), "acct-2"); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("rejected account was stored: err = %v", err)
	}
}

func testNotFound(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	if _, err := s.FindByID(ctx, "missing"); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("FindByID err = %v", err)
	}
	if _, err := s.FindByEmail(ctx, "nobody@example.com"); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("FindByEmail err = %v", err)
	}
	if _, err := s.FindByVerificationToken(ctx, mustToken(t)); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("FindByVerificationToken err = %v", err)
	}
	if _, err := s.FindByResetToken(ctx, mustToken(t), testNow); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("FindByResetToken err = %v", err)
	}
}

func testVerificationTokenLookup(t *testing.T, s ac.CredentialStore) {
	tok := mustToken(t)
	a := NewLocal("acct-1", "carol@example.com")
	a.SetVerificationToken(tok, testNow.Add(24*time.Hour))
	mustCreate(t, s, a)

	found, err := s.FindByVerificationToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("FindByVerificationToken: %v", err)
	}
	if found.ID != "acct-1" || found.VerificationTokenExpiry == nil {
		t.Errorf("unexpected account %+v", found)
	}
}

func testResetTokenExpiry(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	a := NewLocal("acct-1", "dave@example.com")
	a.IsVerified = true
	mustCreate(t, s, a)

	tok := mustToken(t)
	if _, err := s.Update(ctx, "acct-1", func(a *ac.Account) error {
		a.SetResetToken(tok, testNow.Add(time.Hour))
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := s.FindByResetToken(ctx, tok, testNow); err != nil {
		t.Errorf("live token not found: %v", err)
	}
	if _, err := s.FindByResetToken(ctx, tok, testNow.Add(time.Hour)); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("token at expiry instant err = %v, want not found", err)
	}
	if _, err := s.FindByResetToken(ctx, tok, testNow.Add(2*time.Hour)); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("expired token err = %v, want not found", err)
	}
}

func testUpdateAppliesMutation(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	mustCreate(t, s, NewLocal("acct-1", "erin@example.com"))

	updated, err := s.Update(ctx, "acct-1", func(a *ac.Account) error {
		a.LinkProvider(ac.ProviderGoogle, "g-123")
		a.IsVerified = true
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.HasProvider(ac.ProviderGoogle) || !updated.IsVerified {
		t.Errorf("Update result missing mutation: %+v", updated)
	}

	reloaded, _ := s.FindByID(ctx, "acct-1")
	if !reloaded.HasProvider(ac.ProviderGoogle) || len(reloaded.Providers) != 2 {
		t.Errorf("mutation not persisted: %+v", reloaded.Providers)
	}
	for _, p := range reloaded.Providers {
		if p.Name == ac.ProviderGoogle && p.ProviderID != "g-123" {
			t.Errorf("google provider id = %q", p.ProviderID)
		}
	}
}

func testUpdateAbortsOnError(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	mustCreate(t, s, NewLocal("acct-1", "frank@example.com"))

	boom := errors.New("boom")
	_, err := s.Update(ctx, "acct-1", func(a *ac.Account) error {
		a.IsVerified = true
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update err = %v, want mutation error", err)
	}
	reloaded, _ := s.FindByID(ctx, "acct-1")
	if reloaded.IsVerified {
		t.Error("aborted mutation was written")
	}

	if _, err := s.Update(ctx, "missing", func(*ac.Account) error { return nil }); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("Update of missing account err = %v", err)
	}
}

func testUpdateRejectsBrokenInvariant(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	mustCreate(t, s, NewLocal("acct-1", "gina@example.com"))

	_, err := s.Update(ctx, "acct-1", func(a *ac.Account) error {
		a.PasswordHash = ""
		return nil
	})
	if err == nil {
		t.Fatal("expected Update to reject a local provider without a password hash")
	}
	reloaded, _ := s.FindByID(ctx, "acct-1")
	if reloaded.PasswordHash == "" {
		t.Error("invalid account was written")
	}
}

func testConsumedTokenNotFound(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	tok := mustToken(t)
	a := NewLocal("acct-1", "hank@example.com")
	a.SetVerificationToken(tok, testNow.Add(time.Hour))
	mustCreate(t, s, a)

	if _, err := s.Update(ctx, "acct-1", func(a *ac.Account) error {
		a.IsVerified = true
		a.ClearVerificationToken()
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.FindByVerificationToken(ctx, tok); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("consumed token still resolves: err = %v", err)
	}
	reloaded, _ := s.FindByID(ctx, "acct-1")
	if reloaded.VerificationToken != "" || reloaded.VerificationTokenExpiry != nil {
		t.Errorf("token fields not cleared: %+v", reloaded)
	}
}

func testSaveOverwrites(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	mustCreate(t, s, NewLocal("acct-1", "ivy@example.com"))

	a, _ := s.FindByID(ctx, "acct-1")
	a.Name = "Ivy Renamed"
	a.Avatar = "https://example.com/ivy.png"
	for i := 0; i < 2; i++ {
		if err := s.Save(ctx, a); err != nil {
			t.Fatalf("Save #%d: %v", i+1, err)
		}
	}
	reloaded, _ := s.FindByID(ctx, "acct-1")
	if reloaded.Name != "Ivy Renamed" || reloaded.Avatar != a.Avatar {
		t.Errorf("Save not persisted: %+v", reloaded)
	}
}

func testSaveUnknownAccount(t *testing.T, s ac.CredentialStore) {
	err := s.Save(context.Background(), NewLocal("ghost", "ghost@example.com"))
	if !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("Save of unknown account err = %v, want ErrAccountNotFound", err)
	}
}

func testReturnsCopies(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	mustCreate(t, s, NewLocal("acct-1", "jack@example.com"))

	a, _ := s.FindByID(ctx, "acct-1")
	a.Providers[0].ProviderID = "tampered"
	a.Name = "tampered"

	b, _ := s.FindByID(ctx, "acct-1")
	if b.Name == "tampered" || b.Providers[0].ProviderID == "tampered" {
		t.Error("store returned aliased state")
	}
}

func testRejectsInvalidAccount(t *testing.T, s ac.CredentialStore) {
	a := NewLocal("acct-1", "kim@example.com")
	a.Providers = []ac.Provider{{Name: ac.ProviderGoogle, ProviderID: "g-1"}}
	if err := s.Create(context.Background(), a); err == nil {
		t.Error("expected Create to reject a password hash without the local provider")
	}
}

func testConcurrentCreateSameEmail(t *testing.T, s ac.CredentialStore) {
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Create(context.Background(), NewLocal(fmt.Sprintf("acct-%d", i), "race@example.com"))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ac.ErrDuplicateEmail):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("created %d accounts for one email, want 1", created)
	}
}

func testConcurrentLink(t *testing.T, s ac.CredentialStore) {
	ctx := context.Background()
	mustCreate(t, s, NewLocal("acct-1", "link@example.com"))

	providers := []string{ac.ProviderGoogle, ac.ProviderFacebook, ac.ProviderInstagram, ac.ProviderApple}
	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			if _, err := s.Update(ctx, "acct-1", func(a *ac.Account) error {
				a.LinkProvider(p, p+"-id")
				return nil
			}); err != nil {
				t.Errorf("Update(%s): %v", p, err)
			}
		}(p)
	}
	wg.Wait()

	a, _ := s.FindByID(ctx, "acct-1")
	if len(a.Providers) != len(providers)+1 {
		t.Fatalf("providers = %+v, want local plus %d", a.Providers, len(providers))
	}
	for _, p := range providers {
		if !a.HasProvider(p) {
			t.Errorf("lost concurrent link of %s", p)
		}
	}
}
