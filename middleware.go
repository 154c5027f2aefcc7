package authcore

import (
	"context"
	"log/slog"
	"net/http"
)

type accountContextKey struct{}

// AccountFromContext returns the account loaded by ExtractAccount or
// RequireAccount, or nil for anonymous requests.
func AccountFromContext(ctx context.Context) *Account {
	a, _ := ctx.Value(accountContextKey{}).(*Account)
	return a
}

// WithAccount stores account in ctx for downstream handlers.
func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// Middleware resolves the session owner for wrapped handlers. Handlers it
// wraps must themselves run inside Sessions.LoadAndSave.
type Middleware struct {
	Binder *SessionBinder
	Logger *slog.Logger
}

func (m *Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// ExtractAccount loads the current account, if any, into the request
// context. It never rejects a request.
func (m *Middleware) ExtractAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := m.Binder.Current(r.Context())
		if err != nil {
			m.logger().WarnContext(r.Context(), "failed to load session account", "err", err)
		}
		if account != nil {
			r = r.WithContext(WithAccount(r.Context(), account))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAccount rejects anonymous requests with 401.
func (m *Middleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := m.Binder.Current(r.Context())
		if err != nil {
			m.logger().ErrorContext(r.Context(), "failed to load session account", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if account == nil {
			writeError(w, http.StatusUnauthorized, "You must be logged in to access this resource")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
	})
}
