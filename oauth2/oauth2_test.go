package oauth2_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oauth2lib "golang.org/x/oauth2"

	ac "github.com/panyam/authcore"
	"github.com/panyam/authcore/oauth2"
)

// mockProvider serves /auth, /token and /profile for one provider.
type mockProvider struct {
	server      *httptest.Server
	tokenFields map[string]any
	profile     map[string]any
	tokenStatus int
	lastForm    url.Values
}

func newMockProvider(t *testing.T) *mockProvider {
	m := &mockProvider{
		tokenFields: map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		},
		tokenStatus: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		m.lastForm = r.PostForm
		if m.tokenStatus != http.StatusOK {
			http.Error(w, `{"error":"invalid_grant"}`, m.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.tokenFields)
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mock_access_token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.profile)
	})
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockProvider) config() oauth2.Config {
	return oauth2.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		CallbackURL:  "http://localhost:5000/auth/test/callback",
		Endpoint: oauth2lib.Endpoint{
			AuthURL:  m.server.URL + "/auth",
			TokenURL: m.server.URL + "/token",
		},
		ProfileURL: m.server.URL + "/profile",
	}
}

func TestConfigRequiresCredentials(t *testing.T) {
	_, err := oauth2.NewFacebook(oauth2.Config{ClientID: "id"})
	assert.Error(t, err)
	_, err = oauth2.NewInstagram(oauth2.Config{ClientSecret: "secret"})
	assert.Error(t, err)
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	m := newMockProvider(t)
	fb, err := oauth2.NewFacebook(m.config())
	require.NoError(t, err)

	u, err := url.Parse(fb.AuthCodeURL("signed-state"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, m.server.URL+"/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "test-client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:5000/auth/test/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "signed-state", q.Get("state"))
	assert.Equal(t, "facebook", fb.Name())
}

func TestFacebookProfile(t *testing.T) {
	m := newMockProvider(t)
	m.profile = map[string]any{
		"id":    "fb-123",
		"name":  "Face Book",
		"email": "fb@example.com",
		"picture": map[string]any{
			"data": map[string]any{"url": "https://cdn.example.com/fb.png"},
		},
	}
	fb, err := oauth2.NewFacebook(m.config())
	require.NoError(t, err)

	p, err := fb.ResolveFederatedIdentity(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, &ac.FederatedProfile{
		Provider:   ac.ProviderFacebook,
		ProviderID: "fb-123",
		Email:      "fb@example.com",
		Name:       "Face Book",
		Avatar:     "https://cdn.example.com/fb.png",
	}, p)
	assert.Equal(t, "auth-code", m.lastForm.Get("code"))
}

func TestFacebookEmailFallback(t *testing.T) {
	m := newMockProvider(t)
	m.profile = map[string]any{"id": "fb-456", "name": "No Email"}
	fb, err := oauth2.NewFacebook(m.config())
	require.NoError(t, err)

	p, err := fb.ResolveFederatedIdentity(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "fb-456@facebook.com", p.Email)
	assert.NoError(t, p.Validate())
}

func TestInstagramProfile(t *testing.T) {
	m := newMockProvider(t)
	m.profile = map[string]any{
		"id":                  "ig-789",
		"username":            "snapshooter",
		"profile_picture_url": "https://cdn.example.com/ig.png",
	}
	cfg := m.config()
	cfg.Endpoint.AuthStyle = oauth2lib.AuthStyleInParams
	ig, err := oauth2.NewInstagram(cfg)
	require.NoError(t, err)

	p, err := ig.ResolveFederatedIdentity(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "ig-789@instagram.com", p.Email)
	assert.Equal(t, "snapshooter", p.Name)
	assert.Equal(t, "https://cdn.example.com/ig.png", p.Avatar)
	// credentials travel in the form body
	assert.Equal(t, "test-client-secret", m.lastForm.Get("client_secret"))
}

func TestTokenExchangeFailure(t *testing.T) {
	m := newMockProvider(t)
	m.tokenStatus = http.StatusBadRequest
	fb, err := oauth2.NewFacebook(m.config())
	require.NoError(t, err)

	_, err = fb.ResolveFederatedIdentity(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestMissingCodeRejected(t *testing.T) {
	m := newMockProvider(t)
	fb, err := oauth2.NewFacebook(m.config())
	require.NoError(t, err)

	_, err = fb.ResolveFederatedIdentity(context.Background(), "")
	assert.Error(t, err)
}

func TestProfileErrorStatus(t *testing.T) {
	m := newMockProvider(t)
	m.tokenFields["access_token"] = "wrong_token"
	fb, err := oauth2.NewFacebook(m.config())
	require.NoError(t, err)

	_, err = fb.ResolveFederatedIdentity(context.Background(), "auth-code")
	assert.Error(t, err)
}

// googleFixture signs id_tokens with a throwaway RSA key trusted by a
// static key set.
type googleFixture struct {
	mock   *mockProvider
	key    *rsa.PrivateKey
	google *oauth2.Google
}

func newGoogleFixture(t *testing.T) *googleFixture {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	m := newMockProvider(t)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := oidc.NewVerifier(oauth2.GoogleIssuer, keySet, &oidc.Config{ClientID: "test-client-id"})
	cfg := m.config()
	return &googleFixture{
		mock:   m,
		key:    key,
		google: oauth2.NewGoogleWithVerifier(cfg, cfg.Endpoint, verifier),
	}
}

func (f *googleFixture) issue(t *testing.T, claims jwt.MapClaims) {
	now := time.Now()
	base := jwt.MapClaims{
		"iss": oauth2.GoogleIssuer,
		"aud": "test-client-id",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, base).SignedString(f.key)
	require.NoError(t, err)
	f.mock.tokenFields["id_token"] = signed
}

func TestGoogleVerifiesIDToken(t *testing.T) {
	f := newGoogleFixture(t)
	f.issue(t, jwt.MapClaims{
		"sub":            "g-1",
		"email":          "g@example.com",
		"email_verified": true,
		"name":           "Gee Person",
		"picture":        "https://cdn.example.com/g.png",
	})

	p, err := f.google.ResolveFederatedIdentity(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, ac.ProviderGoogle, p.Provider)
	assert.Equal(t, "g-1", p.ProviderID)
	assert.Equal(t, "g@example.com", p.Email)
	assert.Equal(t, "Gee Person", p.Name)
	assert.Equal(t, "https://cdn.example.com/g.png", p.Avatar)
}

func TestGoogleRejectsBadTokens(t *testing.T) {
	cases := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"wrong audience", jwt.MapClaims{"sub": "g-1", "email": "g@example.com", "email_verified": true, "aud": "someone-else"}},
		{"wrong issuer", jwt.MapClaims{"sub": "g-1", "email": "g@example.com", "email_verified": true, "iss": "https://evil.example.com"}},
		{"expired", jwt.MapClaims{"sub": "g-1", "email": "g@example.com", "email_verified": true, "exp": time.Now().Add(-time.Hour).Unix()}},
		{"unverified email", jwt.MapClaims{"sub": "g-1", "email": "g@example.com", "email_verified": false}},
		{"missing email", jwt.MapClaims{"sub": "g-1", "email_verified": true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGoogleFixture(t)
			f.issue(t, tc.claims)
			_, err := f.google.ResolveFederatedIdentity(context.Background(), "auth-code")
			assert.Error(t, err)
		})
	}
}

func TestGoogleWithoutIDToken(t *testing.T) {
	f := newGoogleFixture(t)
	_, err := f.google.ResolveFederatedIdentity(context.Background(), "auth-code")
	assert.Error(t, err)
}

func TestGooglePromptsAccountChooser(t *testing.T) {
	f := newGoogleFixture(t)
	u, err := url.Parse(f.google.AuthCodeURL("s"))
	require.NoError(t, err)
	assert.Equal(t, "select_account", u.Query().Get("prompt"))
	assert.Contains(t, u.Query().Get("scope"), "openid")
}
