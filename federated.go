package authcore

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

// sessionNonceKey holds the nonce of the state minted for this browser.
const sessionNonceKey = "oauthNonce"

func (h *Handler) adapterFor(w http.ResponseWriter, r *http.Request) (ProviderAdapter, bool) {
	adapter, ok := h.Providers.Get(mux.Vars(r)["provider"])
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown provider")
	}
	return adapter, ok
}

func (h *Handler) handleProviderRedirect(w http.ResponseWriter, r *http.Request) {
	adapter, ok := h.adapterFor(w, r)
	if !ok {
		return
	}
	state, nonce, err := h.States.Issue(r.URL.Query().Get("state"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.Binder.Sessions.Put(r.Context(), sessionNonceKey, nonce)
	http.Redirect(w, r, adapter.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	adapter, ok := h.adapterFor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	log := h.Logger.With("provider", adapter.Name())
	query := r.URL.Query()

	nonce := h.Binder.Sessions.PopString(ctx, sessionNonceKey)
	client, err := h.States.Parse(query.Get("state"), nonce)
	if err != nil {
		log.WarnContext(ctx, "rejected provider callback", "err", err)
		http.Redirect(w, r, h.FailureRedirect, http.StatusFound)
		return
	}
	if e := query.Get("error"); e != "" {
		log.InfoContext(ctx, "provider denied sign-in", "error", e)
		http.Redirect(w, r, h.FailureRedirect, http.StatusFound)
		return
	}

	profile, err := adapter.ResolveFederatedIdentity(ctx, query.Get("code"))
	if err != nil {
		log.WarnContext(ctx, "federated identity not resolved", "err", err)
		http.Redirect(w, r, h.FailureRedirect, http.StatusFound)
		return
	}
	account, err := h.Service.ResolveFederated(ctx, *profile)
	if err != nil {
		log.ErrorContext(ctx, "failed to resolve account", "err", err)
		http.Redirect(w, r, h.FailureRedirect, http.StatusFound)
		return
	}
	if err := h.Binder.Bind(ctx, account); err != nil {
		log.ErrorContext(ctx, "failed to bind session", "account_id", account.ID, "err", err)
		http.Redirect(w, r, h.FailureRedirect, http.StatusFound)
		return
	}

	target, err := h.successURL(client, account.Public())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// successURL is {base}/auth/success?user=<json> where base depends on the
// client kind.
func (h *Handler) successURL(client string, user PublicAccount) (string, error) {
	base := h.FrontendURL
	if client == ClientMobile {
		base = h.MobileURL
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(base, "/") + "/auth/success?user=" + url.QueryEscape(string(payload)), nil
}
