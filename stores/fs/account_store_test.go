package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	ac "github.com/panyam/authcore"
	"github.com/panyam/authcore/stores/storetest"
)

func TestAccountStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ac.CredentialStore {
		return NewAccountStore(t.TempDir())
	})
}

func TestEmailIndexSurvivesNewStoreInstance(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if err := NewAccountStore(dir).Create(ctx, storetest.NewLocal("acct-1", "shared@example.com")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// a second instance over the same directory must see the claimed email
	err := NewAccountStore(dir).Create(ctx, storetest.NewLocal("acct-2", "Shared@Example.com"))
	if !errors.Is(err, ac.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestStaleTokenIndexIsIgnored(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := NewAccountStore(dir)

	tok, _ := ac.GenerateSecureToken()
	a := storetest.NewLocal("acct-1", "stale@example.com")
	a.SetVerificationToken(tok, a.CreatedAt.Add(24*time.Hour))
	if err := s.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// simulate an index file left behind by a crash after the account changed
	stored, _ := s.FindByID(ctx, "acct-1")
	stored.ClearVerificationToken()
	data := []byte(`{"account_id":"acct-1","type":"email_verification"}`)
	if err := s.Save(ctx, stored); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tokens", tok+".json"), data, 0644); err != nil {
		t.Fatalf("write stale index: %v", err)
	}

	if _, err := s.FindByVerificationToken(ctx, tok); !errors.Is(err, ac.ErrAccountNotFound) {
		t.Errorf("stale index resolved: err = %v", err)
	}
}

func TestRejectsPathTraversalIDs(t *testing.T) {
	s := NewAccountStore(t.TempDir())
	for _, id := range []string{"../escape", "a/b", ".."} {
		if _, err := s.FindByID(context.Background(), id); !errors.Is(err, ac.ErrAccountNotFound) {
			t.Errorf("FindByID(%q) err = %v", id, err)
		}
	}
}
