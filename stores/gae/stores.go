//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	ac "github.com/panyam/authcore"
)

// Kind constants for Datastore entities
const (
	KindAccount      = "Account"
	KindAccountEmail = "AccountEmail"
)

// AccountStore implements ac.CredentialStore using Google Cloud Datastore.
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

var _ ac.CredentialStore = (*AccountStore)(nil)

// NewAccountStore creates a Datastore-backed store in the given namespace.
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{client: client, namespace: namespace}
}

func (s *AccountStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *AccountStore) accountKey(id string) *datastore.Key {
	return s.namespacedKey(KindAccount, id)
}

func (s *AccountStore) emailKey(email string) *datastore.Key {
	return s.namespacedKey(KindAccountEmail, ac.NormalizeEmail(email))
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (*ac.Account, error) {
	if id == "" {
		return nil, ac.ErrAccountNotFound
	}
	var entity AccountEntity
	if err := s.client.Get(ctx, s.accountKey(id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ac.ErrAccountNotFound
		}
		return nil, ac.NewStorageError("get account", err)
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*ac.Account, error) {
	email = ac.NormalizeEmail(email)
	if email == "" {
		return nil, ac.ErrAccountNotFound
	}
	var claim AccountEmailEntity
	if err := s.client.Get(ctx, s.emailKey(email), &claim); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ac.ErrAccountNotFound
		}
		return nil, ac.NewStorageError("get email claim", err)
	}
	account, err := s.FindByID(ctx, claim.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Email != email {
		return nil, ac.ErrAccountNotFound
	}
	return account, nil
}

// findByToken queries on an indexed token property and returns the single
// matching entity.
func (s *AccountStore) findByToken(ctx context.Context, field, token string) (*ac.Account, error) {
	if token == "" {
		return nil, ac.ErrAccountNotFound
	}
	query := datastore.NewQuery(KindAccount).
		FilterField(field, "=", token).
		Limit(1)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	it := s.client.Run(ctx, query)
	var entity AccountEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, ac.ErrAccountNotFound
	}
	if err != nil {
		return nil, ac.NewStorageError("query "+field, err)
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) FindByVerificationToken(ctx context.Context, token string) (*ac.Account, error) {
	account, err := s.findByToken(ctx, "verification_token", token)
	if err != nil {
		return nil, err
	}
	if account.VerificationToken != token {
		return nil, ac.ErrAccountNotFound
	}
	return account, nil
}

func (s *AccountStore) FindByResetToken(ctx context.Context, token string, now time.Time) (*ac.Account, error) {
	account, err := s.findByToken(ctx, "reset_password_token", token)
	if err != nil {
		return nil, err
	}
	if !account.ResetValid(token, now) {
		return nil, ac.ErrAccountNotFound
	}
	return account, nil
}

// Create claims the email and writes the account in one transaction.
func (s *AccountStore) Create(ctx context.Context, account *ac.Account) error {
	account.Email = ac.NormalizeEmail(account.Email)
	if err := account.Validate(); err != nil {
		return err
	}
	if account.ID == "" {
		return fmt.Errorf("account id is required")
	}
	key := s.accountKey(account.ID)
	emailKey := s.emailKey(account.Email)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var claim AccountEmailEntity
		err := tx.Get(emailKey, &claim)
		if err == nil {
			return ac.ErrDuplicateEmail
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		var existing AccountEntity
		err = tx.Get(key, &existing)
		if err == nil {
			return fmt.Errorf("account %s already exists", account.ID)
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}

		now := time.Now()
		claim = AccountEmailEntity{Key: emailKey, AccountID: account.ID, CreatedAt: now}
		if _, err := tx.Put(emailKey, &claim); err != nil {
			return err
		}
		account.UpdatedAt = now
		_, err = tx.Put(key, AccountToEntity(account, key, 1))
		return err
	})
	return ac.NewStorageError("create account", err)
}

func (s *AccountStore) Save(ctx context.Context, account *ac.Account) error {
	account.Email = ac.NormalizeEmail(account.Email)
	if err := account.Validate(); err != nil {
		return err
	}
	_, err := s.Update(ctx, account.ID, func(a *ac.Account) error {
		if a.Email != account.Email {
			return fmt.Errorf("account %s: email cannot change", account.ID)
		}
		*a = *account.Clone()
		return nil
	})
	return err
}

// Update reads, mutates and writes the account inside one transaction.
// Datastore retries the function on contention, so mutate may run more
// than once.
func (s *AccountStore) Update(ctx context.Context, id string, mutate func(*ac.Account) error) (*ac.Account, error) {
	if id == "" {
		return nil, ac.ErrAccountNotFound
	}
	key := s.accountKey(id)

	var out *ac.Account
	var rejected error
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		rejected = nil
		var entity AccountEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return ac.ErrAccountNotFound
			}
			return err
		}
		account := entity.ToAccount()
		email := account.Email
		if err := mutate(account); err != nil {
			rejected = err
			return err
		}
		account.Email = email
		if err := account.Validate(); err != nil {
			rejected = err
			return err
		}
		account.UpdatedAt = time.Now()
		if _, err := tx.Put(key, AccountToEntity(account, key, entity.Version+1)); err != nil {
			return err
		}
		out = account
		return nil
	})
	if rejected != nil {
		return nil, rejected
	}
	if err != nil {
		return nil, ac.NewStorageError("update account", err)
	}
	return out.Clone(), nil
}
