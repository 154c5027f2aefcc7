package authcore

import (
	"errors"
	"fmt"
)

// Outcomes callers are expected to branch on with errors.Is.
var (
	ErrDuplicateEmail        = errors.New("email already in use")
	ErrInvalidCredentials    = errors.New("incorrect email or password")
	ErrAccountNotVerified    = errors.New("user is not verified")
	ErrUnknownEmail          = errors.New("incorrect email")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrAccountNotFound is returned by stores for lookups that match nothing.
	ErrAccountNotFound = errors.New("account not found")

	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage failure")
)

// StorageError wraps a persistence fault. It is never retried internally.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// NewStorageError wraps err unless it is nil or already a domain outcome.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) || errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrDuplicateEmail) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Validation error codes carried by AuthError.
const (
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidEmail    = "invalid_email"
	ErrCodeInvalidName     = "invalid_name"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeInvalidProvider = "invalid_provider"
	ErrCodeInvalidProfile  = "invalid_profile"
)

// AuthError reports rejected input, naming the offending field.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}
