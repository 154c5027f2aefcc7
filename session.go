package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
)

// SessionAccountKey is the session key holding the bound account id.
const SessionAccountKey = "accountId"

// AccountFinder is the slice of CredentialStore the binder needs.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*Account, error)
}

// SessionBinder ties an authenticated account to the caller's server-side
// session. Only the account id is stored; the account is reloaded on every
// request so changes take effect immediately.
type SessionBinder struct {
	Sessions *scs.SessionManager
	Accounts AccountFinder
}

// SessionOptions configures the session cookie.
type SessionOptions struct {
	Lifetime   time.Duration
	CookieName string
	Production bool
	Store      scs.Store
}

// NewSessionManager returns an scs manager with the cookie policy used by
// the service: HttpOnly, 24h by default, Secure with SameSite=None in
// production and SameSite=Lax otherwise.
func NewSessionManager(opts SessionOptions) *scs.SessionManager {
	sm := scs.New()
	if opts.Store != nil {
		sm.Store = opts.Store
	}
	sm.Lifetime = opts.Lifetime
	if sm.Lifetime <= 0 {
		sm.Lifetime = 24 * time.Hour
	}
	if opts.CookieName != "" {
		sm.Cookie.Name = opts.CookieName
	}
	sm.Cookie.HttpOnly = true
	sm.Cookie.Path = "/"
	sm.Cookie.Persist = true
	if opts.Production {
		sm.Cookie.Secure = true
		sm.Cookie.SameSite = http.SameSiteNoneMode
	} else {
		sm.Cookie.Secure = false
		sm.Cookie.SameSite = http.SameSiteLaxMode
	}
	return sm
}

// Bind records account as the session owner. The session token is renewed
// first so a pre-login token cannot be reused.
func (b *SessionBinder) Bind(ctx context.Context, account *Account) error {
	if err := b.Sessions.RenewToken(ctx); err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	b.Sessions.Put(ctx, SessionAccountKey, account.ID)
	return nil
}

// Destroy ends the session. The cookie is expired by LoadAndSave.
func (b *SessionBinder) Destroy(ctx context.Context) error {
	return b.Sessions.Destroy(ctx)
}

// AccountID returns the bound account id or "".
func (b *SessionBinder) AccountID(ctx context.Context) string {
	return b.Sessions.GetString(ctx, SessionAccountKey)
}

// Current rehydrates the bound account. It returns (nil, nil) when the
// session is anonymous or the account no longer exists.
func (b *SessionBinder) Current(ctx context.Context) (*Account, error) {
	id := b.AccountID(ctx)
	if id == "" {
		return nil, nil
	}
	account, err := b.Accounts.FindByID(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
