package authcore

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password the policy accepts.
const MinPasswordLength = 8

// MaxPasswordBytes is the longest password bcrypt can digest.
const MaxPasswordBytes = 72

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Registration is the input to a local sign-up.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Validate checks every field and returns the first *AuthError found.
func (r *Registration) Validate() error {
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	return ValidatePassword(r.Password)
}

// ValidateEmail checks email syntax after normalization.
func ValidateEmail(email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if !emailRegex.MatchString(email) {
		return NewAuthError(ErrCodeInvalidEmail, "Please provide a valid email", "email")
	}
	return nil
}

// ValidateName requires a non-blank display name of at most MaxNameLength characters.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewAuthError(ErrCodeMissingField, "Name is required", "name")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return NewAuthError(ErrCodeInvalidName, fmt.Sprintf("Name cannot be more than %d characters", MaxNameLength), "name")
	}
	return nil
}

// ValidatePassword enforces the password policy: at least MinPasswordLength
// characters, at most MaxPasswordBytes bytes, and at least one letter and
// one digit.
func ValidatePassword(password string) error {
	if password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return NewAuthError(ErrCodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", MinPasswordLength), "password")
	}
	if len(password) > MaxPasswordBytes {
		return NewAuthError(ErrCodeWeakPassword, fmt.Sprintf("Password cannot be longer than %d bytes", MaxPasswordBytes), "password")
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return NewAuthError(ErrCodeWeakPassword, "Password must contain at least one letter and one number", "password")
	}
	return nil
}
