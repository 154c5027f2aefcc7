//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ac "github.com/panyam/authcore"
)

// AutoMigrate creates or updates the account tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountModel{}, &ProviderModel{})
}

// AccountStore implements ac.CredentialStore on a relational database.
// Email uniqueness rests on the unique index on accounts.email; Update
// locks the account row for the duration of its transaction.
type AccountStore struct {
	db *gorm.DB
}

var _ ac.CredentialStore = (*AccountStore)(nil)

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func withProviders(db *gorm.DB) *gorm.DB {
	return db.Preload("Providers", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

func (s *AccountStore) first(db *gorm.DB, op string, query string, args ...any) (*ac.Account, error) {
	var model AccountModel
	err := withProviders(db).Where(query, args...).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ac.ErrAccountNotFound
	}
	if err != nil {
		return nil, ac.NewStorageError(op, err)
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (*ac.Account, error) {
	return s.first(s.db.WithContext(ctx), "find account", "id = ?", id)
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*ac.Account, error) {
	return s.first(s.db.WithContext(ctx), "find account by email", "email = ?", ac.NormalizeEmail(email))
}

func (s *AccountStore) FindByVerificationToken(ctx context.Context, token string) (*ac.Account, error) {
	if token == "" {
		return nil, ac.ErrAccountNotFound
	}
	return s.first(s.db.WithContext(ctx), "find account by verification token", "verification_token = ?", token)
}

func (s *AccountStore) FindByResetToken(ctx context.Context, token string, now time.Time) (*ac.Account, error) {
	if token == "" {
		return nil, ac.ErrAccountNotFound
	}
	return s.first(s.db.WithContext(ctx), "find account by reset token",
		"reset_password_token = ? AND reset_password_expiry > ?", token, now.UTC())
}

func (s *AccountStore) Create(ctx context.Context, account *ac.Account) error {
	account.Email = ac.NormalizeEmail(account.Email)
	if err := account.Validate(); err != nil {
		return err
	}
	model := AccountToModel(account)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&AccountModel{}).Where("email = ?", model.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ac.ErrDuplicateEmail
		}
		return tx.Create(model).Error
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ac.ErrDuplicateEmail) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return ac.ErrDuplicateEmail
	}
	// A concurrent insert may have tripped the unique index without the
	// driver translating the error.
	if _, ferr := s.FindByEmail(ctx, model.Email); ferr == nil {
		return ac.ErrDuplicateEmail
	}
	return ac.NewStorageError("create account", err)
}

func (s *AccountStore) Save(ctx context.Context, account *ac.Account) error {
	account.Email = ac.NormalizeEmail(account.Email)
	if err := account.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return write(tx, AccountToModel(account))
	})
}

func (s *AccountStore) Update(ctx context.Context, id string, mutate func(*ac.Account) error) (*ac.Account, error) {
	var out *ac.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.first(tx.Clauses(clause.Locking{Strength: "UPDATE"}), "lock account", "id = ?", id)
		if err != nil {
			return err
		}
		email := account.Email
		if err := mutate(account); err != nil {
			return err
		}
		account.Email = email
		if err := account.Validate(); err != nil {
			return err
		}
		if err := write(tx, AccountToModel(account)); err != nil {
			return err
		}
		out = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// write overwrites every column except id, email and created_at, then
// replaces the provider rows. It must run inside a transaction.
func write(tx *gorm.DB, model *AccountModel) error {
	providers := model.Providers
	row := *model
	row.Providers = nil

	res := tx.Model(&AccountModel{}).
		Where("id = ?", model.ID).
		Select("*").
		Omit("id", "email", "created_at").
		Updates(&row)
	if res.Error != nil {
		return ac.NewStorageError("update account", res.Error)
	}
	if res.RowsAffected == 0 {
		return ac.ErrAccountNotFound
	}

	if err := tx.Where("account_id = ?", model.ID).Delete(&ProviderModel{}).Error; err != nil {
		return ac.NewStorageError("clear providers", err)
	}
	if len(providers) > 0 {
		if err := tx.Create(&providers).Error; err != nil {
			return ac.NewStorageError("write providers", err)
		}
	}
	return nil
}
