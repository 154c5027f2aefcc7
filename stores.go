package authcore

import (
	"context"
	"time"
)

// CredentialStore persists accounts. Implementations normalize emails on
// every write and lookup, enforce email uniqueness themselves, and return
// deep copies so callers never alias stored state.
//
// Lookups that match nothing return ErrAccountNotFound. Persistence faults
// are reported as *StorageError.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByVerificationToken(ctx context.Context, token string) (*Account, error)

	// FindByResetToken only matches tokens whose expiry is after now.
	FindByResetToken(ctx context.Context, token string, now time.Time) (*Account, error)

	// Create inserts a new account, failing with ErrDuplicateEmail when the
	// normalized email is taken.
	Create(ctx context.Context, account *Account) error

	// Save overwrites an existing account. Saving the same value twice is a no-op.
	Save(ctx context.Context, account *Account) error

	// Update loads the account, applies mutate and writes the result as
	// one serialized step per account. An error from mutate aborts the
	// update without writing and is returned unchanged.
	Update(ctx context.Context, id string, mutate func(*Account) error) (*Account, error)
}
