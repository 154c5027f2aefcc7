//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ac "github.com/panyam/authcore"
	"github.com/panyam/authcore/stores/storetest"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps the shared in-memory database alive and
	// serializes writers the way a row lock would
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestAccountStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ac.CredentialStore {
		return NewAccountStore(newTestDB(t))
	})
}

func TestUniqueEmailIndexBacksDuplicateCheck(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := NewAccountStore(db).Create(ctx, storetest.NewLocal("acct-1", "dup@example.com")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// bypass the store to hit the index directly
	raw := AccountToModel(storetest.NewLocal("acct-2", "dup@example.com"))
	raw.Providers = nil
	err := db.Create(raw).Error
	if err == nil {
		t.Fatal("insert with duplicate email succeeded")
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Logf("driver error not translated: %v", err)
	}
}

func TestProvidersKeepLinkOrder(t *testing.T) {
	s := NewAccountStore(newTestDB(t))
	ctx := context.Background()

	a := storetest.NewLocal("acct-1", "order@example.com")
	if err := s.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Update(ctx, "acct-1", func(a *ac.Account) error {
		a.LinkProvider(ac.ProviderGoogle, "g-1")
		a.LinkProvider(ac.ProviderFacebook, "f-1")
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.FindByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	want := []string{ac.ProviderLocal, ac.ProviderGoogle, ac.ProviderFacebook}
	if len(got.Providers) != len(want) {
		t.Fatalf("providers = %+v", got.Providers)
	}
	for i, name := range want {
		if got.Providers[i].Name != name {
			t.Errorf("providers[%d] = %q, want %q", i, got.Providers[i].Name, name)
		}
	}
}

func TestClearedTokensStoredAsNull(t *testing.T) {
	db := newTestDB(t)
	s := NewAccountStore(db)
	ctx := context.Background()

	for _, id := range []string{"acct-1", "acct-2"} {
		if err := s.Create(ctx, storetest.NewLocal(id, id+"@example.com")); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	var nulls int64
	if err := db.Model(&AccountModel{}).Where("verification_token IS NULL").Count(&nulls).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if nulls != 2 {
		t.Errorf("null verification tokens = %d, want 2", nulls)
	}
}
