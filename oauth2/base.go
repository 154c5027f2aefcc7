// Package oauth2 implements authcore.ProviderAdapter for the supported
// federated providers on top of golang.org/x/oauth2.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Config carries the credentials registered with a provider. Scopes,
// Endpoint and ProfileURL fall back to the provider defaults when unset.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	ProfileURL   string

	// HTTPClient is used for token exchange and profile calls.
	HTTPClient *http.Client
}

func (c Config) validate(provider string) error {
	if c.ClientID == "" || c.ClientSecret == "" || c.CallbackURL == "" {
		return fmt.Errorf("%s oauth config missing required fields", provider)
	}
	return nil
}

// maxProfileBytes caps profile responses read from providers.
const maxProfileBytes = 1 << 20

type baseProvider struct {
	name        string
	oauthConfig *oauth2.Config
	profileURL  string
	httpClient  *http.Client
}

func newBaseProvider(name string, cfg Config, endpoint oauth2.Endpoint, scopes []string, profileURL string) *baseProvider {
	if cfg.Endpoint.AuthURL != "" {
		endpoint = cfg.Endpoint
	}
	if len(cfg.Scopes) > 0 {
		scopes = cfg.Scopes
	}
	if cfg.ProfileURL != "" {
		profileURL = cfg.ProfileURL
	}
	return &baseProvider{
		name: name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		profileURL: profileURL,
		httpClient: cfg.HTTPClient,
	}
}

func (b *baseProvider) Name() string {
	return b.name
}

func (b *baseProvider) AuthCodeURL(state string) string {
	return b.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (b *baseProvider) context(ctx context.Context) context.Context {
	if b.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

func (b *baseProvider) exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("missing authorization code")
	}
	token, err := b.oauthConfig.Exchange(b.context(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange failed: %w", b.name, err)
	}
	return token, nil
}

// getProfile fetches the profile URL with the access token and decodes
// the JSON body into out.
func (b *baseProvider) getProfile(ctx context.Context, token *oauth2.Token, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.profileURL, nil)
	if err != nil {
		return err
	}
	resp, err := b.oauthConfig.Client(b.context(ctx), token).Do(req)
	if err != nil {
		return fmt.Errorf("%s profile request failed: %w", b.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return fmt.Errorf("%s profile read failed: %w", b.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s profile request returned %d", b.name, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s profile decode failed: %w", b.name, err)
	}
	return nil
}

// fallbackEmail stands in for providers that may not disclose an email.
func fallbackEmail(id, domain string) string {
	return id + "@" + domain
}
