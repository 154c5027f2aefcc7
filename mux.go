package authcore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// Handler exposes the account flows over HTTP.
type Handler struct {
	Service   *AuthService
	Binder    *SessionBinder
	Providers *ProviderRegistry
	States    *StateSigner

	// Where federated sign-ins land, chosen by the client kind in the state.
	FrontendURL string
	MobileURL   string

	// FailureRedirect receives browsers whose federated sign-in failed.
	// Defaults to "/login".
	FailureRedirect string

	// PathPrefix is where the routes are mounted. Defaults to "/auth".
	PathPrefix string

	Logger *slog.Logger
}

func (h *Handler) EnsureDefaults() *Handler {
	if h.FailureRedirect == "" {
		h.FailureRedirect = "/login"
	}
	if h.PathPrefix == "" {
		h.PathPrefix = "/auth"
	}
	h.PathPrefix = "/" + strings.Trim(h.PathPrefix, "/")
	if h.Providers == nil {
		h.Providers = NewProviderRegistry()
	}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	return h
}

// Routes registers every endpoint on r under PathPrefix.
func (h *Handler) Routes(r *mux.Router) {
	h.EnsureDefaults()
	mw := &Middleware{Binder: h.Binder, Logger: h.Logger}
	s := r.PathPrefix(h.PathPrefix).Subrouter()

	s.HandleFunc("/register", h.handleRegister).Methods(http.MethodPost)
	s.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost)
	s.HandleFunc("/verify-email", h.handleVerifyEmail).Methods(http.MethodGet)
	s.HandleFunc("/forgot-password", h.handleForgotPassword).Methods(http.MethodPost)
	s.HandleFunc("/reset-password", h.handleResetPassword).Methods(http.MethodPost)
	s.Handle("/change-password", mw.RequireAccount(http.HandlerFunc(h.handleChangePassword))).Methods(http.MethodPost)
	s.HandleFunc("/logout", h.handleLogout).Methods(http.MethodGet, http.MethodPost)
	s.HandleFunc("/current", h.handleCurrent).Methods(http.MethodGet)

	// registered last so the fixed paths above win
	s.HandleFunc("/{provider:[a-z]+}", h.handleProviderRedirect).Methods(http.MethodGet)
	s.HandleFunc("/{provider:[a-z]+}/callback", h.handleProviderCallback).Methods(http.MethodGet)
}

// Router returns a standalone router with sessions loaded and saved
// around every request.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	h.Routes(r)
	return h.Binder.Sessions.LoadAndSave(r)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := h.Binder.AccountID(r.Context()); id != "" {
		h.Logger.InfoContext(r.Context(), "logging out", "account_id", id)
	}
	if err := h.Binder.Destroy(r.Context()); err != nil {
		h.Logger.ErrorContext(r.Context(), "failed to destroy session", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "Error logging out"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	account, err := h.Binder.Current(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if account == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": account.Public()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

// writeError writes a client error, or the opaque body for server errors.
func writeError(w http.ResponseWriter, status int, message string) {
	if status >= http.StatusInternalServerError {
		writeJSON(w, status, map[string]any{
			"error": map[string]any{"status": status, "message": "Internal Server Error"},
		})
		return
	}
	writeJSON(w, status, map[string]any{"status": "error", "message": message})
}

func writeValidationError(w http.ResponseWriter, authErr *AuthError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"status":  "error",
		"message": "Validation Error",
		"errors":  []*AuthError{authErr},
	})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "")
}

// writeServiceError maps domain outcomes to responses in one place.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *AuthError
	switch {
	case errors.As(err, &authErr):
		writeValidationError(w, authErr)
	case errors.Is(err, ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, "Email already in use")
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Incorrect email or password.")
	case errors.Is(err, ErrAccountNotVerified):
		writeError(w, http.StatusUnauthorized, "User is not verified")
	case errors.Is(err, ErrUnknownEmail):
		writeError(w, http.StatusBadRequest, "Incorrect email.")
	case errors.Is(err, ErrInvalidOrExpiredToken):
		writeError(w, http.StatusBadRequest, "Invalid or expired token.")
	default:
		h.internalError(w, r, err)
	}
}
