package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuthService runs the account lifecycle flows over injected collaborators.
// Construct it with NewAuthService or fill the exported fields and call
// EnsureDefaults before first use.
type AuthService struct {
	Store    CredentialStore
	Hasher   Hasher
	Tokens   *TokenIssuer
	Notifier Notifier
	Logger   *slog.Logger

	// HashWorkers bounds concurrent hashing. Defaults to runtime.NumCPU().
	HashWorkers int

	// NotifyTimeout caps a single email dispatch. Defaults to 10s.
	NotifyTimeout time.Duration

	// NewID generates account ids. Defaults to random UUIDs.
	NewID func() string

	pool       *HashPool
	dispatches sync.WaitGroup
	dummyOnce  sync.Once
	dummyHash  string
}

func NewAuthService(store CredentialStore, notifier Notifier) *AuthService {
	return (&AuthService{Store: store, Notifier: notifier}).EnsureDefaults()
}

func (s *AuthService) EnsureDefaults() *AuthService {
	if s.Hasher == nil {
		s.Hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	if s.Tokens == nil {
		s.Tokens = NewTokenIssuer()
	}
	s.Tokens.EnsureDefaults()
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.NotifyTimeout <= 0 {
		s.NotifyTimeout = 10 * time.Second
	}
	if s.NewID == nil {
		s.NewID = func() string { return uuid.NewString() }
	}
	if s.pool == nil {
		s.pool = NewHashPool(s.Hasher, s.HashWorkers)
	}
	return s
}

func (s *AuthService) now() time.Time {
	return s.Tokens.Now()
}

// Wait blocks until every in-flight email dispatch has finished.
func (s *AuthService) Wait() {
	s.dispatches.Wait()
}

// Drain is Wait bounded by ctx.
func (s *AuthService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.dispatches.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Account loads an account by id.
func (s *AuthService) Account(ctx context.Context, id string) (*Account, error) {
	return s.Store.FindByID(ctx, id)
}

// Register creates an unverified local account and sends the verification
// email best-effort.
func (s *AuthService) Register(ctx context.Context, reg Registration) (*PublicAccount, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	email := NormalizeEmail(reg.Email)

	if existing, err := s.Store.FindByEmail(ctx, email); err == nil {
		if !existing.VerificationLapsed(s.now()) {
			return nil, ErrDuplicateEmail
		}
		return s.renewRegistration(ctx, existing.ID, reg)
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	token, expiry, err := s.Tokens.Issue(TokenTypeEmailVerification)
	if err != nil {
		return nil, err
	}
	hash, err := s.pool.Hash(ctx, reg.Password)
	if err != nil {
		return nil, err
	}

	account := NewLocalAccount(s.NewID(), email, reg.Name, hash, s.now())
	account.SetVerificationToken(token, expiry)
	if err := s.Store.Create(ctx, account); err != nil {
		return nil, err
	}
	s.Logger.InfoContext(ctx, "account registered", "account_id", account.ID, "email", account.Email)

	name := account.Name
	s.dispatch(ctx, "verification", account.Email, func(ctx context.Context) error {
		return s.Notifier.SendVerificationEmail(ctx, email, name, token)
	})

	out := account.Public()
	return &out, nil
}

// renewRegistration restarts a sign-up whose verification lapsed: the new
// password and name replace the old ones and a fresh token is mailed.
func (s *AuthService) renewRegistration(ctx context.Context, id string, reg Registration) (*PublicAccount, error) {
	token, expiry, err := s.Tokens.Issue(TokenTypeEmailVerification)
	if err != nil {
		return nil, err
	}
	hash, err := s.pool.Hash(ctx, reg.Password)
	if err != nil {
		return nil, err
	}
	account, err := s.Store.Update(ctx, id, func(a *Account) error {
		now := s.now()
		if !a.VerificationLapsed(now) {
			return ErrDuplicateEmail
		}
		a.Name = strings.TrimSpace(reg.Name)
		a.SetPasswordHash(hash, now)
		a.SetVerificationToken(token, expiry)
		a.ClearResetToken()
		return nil
	})
	if errors.Is(err, ErrAccountNotFound) {
		// deleted since the lookup; the email is free again
		return s.Register(ctx, reg)
	}
	if err != nil {
		return nil, err
	}
	s.Logger.InfoContext(ctx, "registration renewed", "account_id", account.ID, "email", account.Email)

	email, name := account.Email, account.Name
	s.dispatch(ctx, "verification", email, func(ctx context.Context) error {
		return s.Notifier.SendVerificationEmail(ctx, email, name, token)
	})
	out := account.Public()
	return &out, nil
}

// VerifyEmail consumes a verification token and marks its account verified.
// An expired token is cleared before ErrInvalidOrExpiredToken is returned.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	found, err := s.Store.FindByVerificationToken(ctx, token)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidOrExpiredToken
	} else if err != nil {
		return nil, err
	}

	expired := false
	updated, err := s.Store.Update(ctx, found.ID, func(a *Account) error {
		if a.VerificationToken != token {
			return ErrInvalidOrExpiredToken
		}
		expired = !a.VerificationValid(token, s.now())
		if !expired {
			a.IsVerified = true
		}
		a.ClearVerificationToken()
		return nil
	})
	if err != nil {
		return nil, notFoundAsInvalidToken(err)
	}
	if expired {
		s.Logger.InfoContext(ctx, "expired verification token cleared", "account_id", updated.ID)
		return nil, ErrInvalidOrExpiredToken
	}
	s.Logger.InfoContext(ctx, "email verified", "account_id", updated.ID)
	return updated, nil
}

// Login checks a local credential. A missing account, an account without a
// local credential and a wrong password all yield ErrInvalidCredentials;
// ErrAccountNotVerified is only reported once the password matched.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Account, error) {
	account, err := s.Store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	if account == nil || !account.HasProvider(ProviderLocal) || account.PasswordHash == "" {
		// keep timing in line with a real comparison
		_, _ = s.pool.Verify(ctx, password, s.dummyDigest())
		return nil, ErrInvalidCredentials
	}

	ok, err := s.pool.Verify(ctx, password, account.PasswordHash)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.Logger.WarnContext(ctx, "unreadable password digest", "account_id", account.ID, "err", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !account.IsVerified {
		return nil, ErrAccountNotVerified
	}
	return account, nil
}

func (s *AuthService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		h, err := s.Hasher.Hash("not-a-real-password-0")
		if err != nil {
			s.Logger.Warn("failed to build dummy digest", "err", err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// ResolveFederated finds the account owning profile.Email and links the
// provider if needed, or creates a verified password-less account.
func (s *AuthService) ResolveFederated(ctx context.Context, profile FederatedProfile) (*Account, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	profile.Email = NormalizeEmail(profile.Email)

	account, err := s.findOrLink(ctx, profile)
	if !errors.Is(err, ErrAccountNotFound) {
		return account, err
	}

	account = NewFederatedAccount(s.NewID(), profile, s.now())
	err = s.Store.Create(ctx, account)
	if errors.Is(err, ErrDuplicateEmail) {
		// lost a race with a concurrent first sign-in for the same email
		return s.findOrLink(ctx, profile)
	}
	if err != nil {
		return nil, err
	}
	s.Logger.InfoContext(ctx, "account created from provider", "account_id", account.ID, "provider", profile.Provider)
	return account, nil
}

func (s *AuthService) findOrLink(ctx context.Context, profile FederatedProfile) (*Account, error) {
	account, err := s.Store.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, err
	}
	if account.HasProvider(profile.Provider) {
		return account, nil
	}
	updated, err := s.Store.Update(ctx, account.ID, func(a *Account) error {
		a.LinkProvider(profile.Provider, profile.ProviderID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.InfoContext(ctx, "provider linked", "account_id", updated.ID, "provider", profile.Provider)
	return updated, nil
}

// ForgotPassword issues a reset token for a verified account and emails it.
// Unknown and unverified emails are reported distinctly.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.Store.FindByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return ErrUnknownEmail
	} else if err != nil {
		return err
	}
	if !account.IsVerified {
		return ErrAccountNotVerified
	}

	token, expiry, err := s.Tokens.Issue(TokenTypePasswordReset)
	if err != nil {
		return err
	}
	if _, err := s.Store.Update(ctx, account.ID, func(a *Account) error {
		a.SetResetToken(token, expiry)
		return nil
	}); err != nil {
		return err
	}

	to := account.Email
	s.dispatch(ctx, "reset", to, func(ctx context.Context) error {
		return s.Notifier.SendResetPasswordEmail(ctx, to, token)
	})
	return nil
}

// ResetPassword consumes a live reset token and replaces the password.
// Accounts that only had federated providers gain the local provider.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	found, err := s.Store.FindByResetToken(ctx, token, s.now())
	if errors.Is(err, ErrAccountNotFound) {
		if err := s.clearExpiredReset(ctx, token); err != nil {
			return err
		}
		return ErrInvalidOrExpiredToken
	} else if err != nil {
		return err
	}

	hash, err := s.pool.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	updated, err := s.Store.Update(ctx, found.ID, func(a *Account) error {
		now := s.now()
		if !a.ResetValid(token, now) {
			return ErrInvalidOrExpiredToken
		}
		a.LinkProvider(ProviderLocal, a.Email)
		a.SetPasswordHash(hash, now)
		a.ClearResetToken()
		return nil
	})
	if err != nil {
		return notFoundAsInvalidToken(err)
	}
	s.Logger.InfoContext(ctx, "password reset", "account_id", updated.ID)
	return nil
}

// clearExpiredReset drops token from its account if it is stored but no
// longer live. Looking up at the zero time matches any stored expiry.
func (s *AuthService) clearExpiredReset(ctx context.Context, token string) error {
	found, err := s.Store.FindByResetToken(ctx, token, time.Time{})
	if errors.Is(err, ErrAccountNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	_, err = s.Store.Update(ctx, found.ID, func(a *Account) error {
		if a.ResetPasswordToken != token || a.ResetValid(token, s.now()) {
			return errResetUnchanged
		}
		a.ClearResetToken()
		return nil
	})
	if errors.Is(err, errResetUnchanged) || errors.Is(err, ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.Logger.InfoContext(ctx, "expired reset token cleared", "account_id", found.ID)
	return nil
}

var errResetUnchanged = errors.New("reset token replaced or still live")

// ChangePassword replaces the local password of a signed-in account after
// checking the current one. Any pending reset token is dropped.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if err := ValidatePassword(next); err != nil {
		return err
	}
	account, err := s.Store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.HasProvider(ProviderLocal) || account.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	ok, err := s.pool.Verify(ctx, current, account.PasswordHash)
	if err != nil || !ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrInvalidCredentials
	}

	hash, err := s.pool.Hash(ctx, next)
	if err != nil {
		return err
	}
	previous := account.PasswordHash
	_, err = s.Store.Update(ctx, accountID, func(a *Account) error {
		if a.PasswordHash != previous {
			// changed underneath us; the checked password is stale
			return ErrInvalidCredentials
		}
		a.SetPasswordHash(hash, s.now())
		a.ClearResetToken()
		return nil
	})
	if err != nil {
		return err
	}
	s.Logger.InfoContext(ctx, "password changed", "account_id", accountID)
	return nil
}

// dispatch sends an email off the request path. Failures are logged only.
func (s *AuthService) dispatch(ctx context.Context, kind, to string, send func(context.Context) error) {
	if s.Notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.dispatches.Add(1)
	go func() {
		defer s.dispatches.Done()
		ctx, cancel := context.WithTimeout(ctx, s.NotifyTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.Logger.ErrorContext(ctx, fmt.Sprintf("failed to send %s email", kind), "to", to, "err", err)
		}
	}()
}

// A token whose account disappeared between lookup and update is as good
// as invalid.
func notFoundAsInvalidToken(err error) error {
	if errors.Is(err, ErrAccountNotFound) {
		return ErrInvalidOrExpiredToken
	}
	return err
}
