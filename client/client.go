package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	ac "github.com/panyam/authcore"
)

// APIError is a non-2xx reply from the server. It unwraps to the matching
// authcore sentinel so callers can use errors.Is as they would in-process.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []ac.AuthError
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Message, e.Errors[0].Error())
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

var messageErrors = map[string]error{
	"Email already in use":           ac.ErrDuplicateEmail,
	"Incorrect email or password.":   ac.ErrInvalidCredentials,
	"Current password is incorrect.": ac.ErrInvalidCredentials,
	"User is not verified":           ac.ErrAccountNotVerified,
	"Email not verified.":            ac.ErrAccountNotVerified,
	"Incorrect email.":               ac.ErrUnknownEmail,
	"Invalid or expired token.":      ac.ErrInvalidOrExpiredToken,
}

func (e *APIError) Unwrap() error {
	if len(e.Errors) > 0 {
		return &e.Errors[0]
	}
	return messageErrors[e.Message]
}

// errorBody covers both error shapes the server writes.
type errorBody struct {
	Message string         `json:"message"`
	Errors  []ac.AuthError `json:"errors"`
	Error   *struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

type userBody struct {
	User *ac.PublicAccount `json:"user"`
}

// AuthClient talks to one authcore server and keeps its session.
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	pathPrefix    string
	cookieName    string
	store         SessionStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithPathPrefix sets where the auth routes are mounted. Defaults to "/auth".
func WithPathPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.pathPrefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithCookieName sets the session cookie name the server uses.
func WithCookieName(name string) ClientOption {
	return func(c *AuthClient) {
		c.cookieName = name
	}
}

// WithSessionStore persists the session so a later AuthClient for the same
// server resumes it.
func WithSessionStore(store SessionStore) ClientOption {
	return func(c *AuthClient) {
		c.store = store
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// Its transport is wrapped with session handling; its jar replaces the
// default one.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
		if client.Jar != nil {
			c.httpClient.Jar = client.Jar
		}
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a client for the server at serverURL.
func NewAuthClient(serverURL string, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}
	// cookiejar.New only fails on a bad public suffix list, and we pass none
	jar, _ := cookiejar.New(nil)

	c := &AuthClient{
		serverURL:     serverURL,
		pathPrefix:    "/auth",
		cookieName:    DefaultCookieName,
		httpClient:    &http.Client{Jar: jar},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = &persistTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns the underlying client. Requests made through it carry
// the session too.
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Register creates an unverified account. The server emails the
// verification link.
func (c *AuthClient) Register(ctx context.Context, email, password, name string) (*ac.PublicAccount, error) {
	var out userBody
	err := c.do(ctx, http.MethodPost, "/register", map[string]string{
		"email": email, "password": password, "name": name,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

// Login starts a session for a verified local account.
func (c *AuthClient) Login(ctx context.Context, email, password string) (*ac.PublicAccount, error) {
	var out userBody
	err := c.do(ctx, http.MethodPost, "/login", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	if out.User != nil {
		c.annotateSession(out.User)
	}
	return out.User, nil
}

// Logout ends the session on the server and forgets it locally.
func (c *AuthClient) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/logout", nil, nil)
	c.forgetSession()
	return err
}

// Current returns the signed-in account, or nil when the session is
// anonymous.
func (c *AuthClient) Current(ctx context.Context) (*ac.PublicAccount, error) {
	var out userBody
	err := c.do(ctx, http.MethodGet, "/current", nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

// IsLoggedIn reports whether the server still recognizes the session.
func (c *AuthClient) IsLoggedIn(ctx context.Context) bool {
	user, err := c.Current(ctx)
	return err == nil && user != nil
}

func (c *AuthClient) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodGet, "/verify-email?token="+url.QueryEscape(token), nil, nil)
}

func (c *AuthClient) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/forgot-password", map[string]string{"email": email}, nil)
}

func (c *AuthClient) ResetPassword(ctx context.Context, token, password string) error {
	return c.do(ctx, http.MethodPost, "/reset-password", map[string]string{"token": token, "password": password}, nil)
}

// ChangePassword requires a live session.
func (c *AuthClient) ChangePassword(ctx context.Context, current, next string) error {
	return c.do(ctx, http.MethodPost, "/change-password", map[string]string{
		"currentPassword": current, "newPassword": next,
	}, nil)
}

func (c *AuthClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+c.pathPrefix+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	var body errorBody
	if json.Unmarshal(data, &body) != nil {
		return apiErr
	}
	switch {
	case body.Error != nil:
		apiErr.Message = body.Error.Message
	case body.Message != "":
		apiErr.Message = body.Message
	}
	apiErr.Errors = body.Errors
	return apiErr
}

func (c *AuthClient) storedSession() *SessionCredential {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, err := c.store.GetSession(c.serverURL)
	if err != nil || cred == nil || cred.Token == "" || cred.IsExpired() {
		return nil
	}
	return cred
}

func (c *AuthClient) rememberSession(token string, expires time.Time) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, _ := c.store.GetSession(c.serverURL)
	if cred == nil || cred.Token != token {
		cred = &SessionCredential{Token: token, CreatedAt: time.Now()}
	}
	cred.ExpiresAt = expires
	if c.store.SetSession(c.serverURL, cred) == nil {
		_ = c.store.Save()
	}
}

// annotateSession records who the stored session belongs to.
func (c *AuthClient) annotateSession(user *ac.PublicAccount) {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, _ := c.store.GetSession(c.serverURL)
	if cred == nil {
		return
	}
	cred.AccountID = user.ID
	cred.Email = user.Email
	if c.store.SetSession(c.serverURL, cred) == nil {
		_ = c.store.Save()
	}
}

func (c *AuthClient) forgetSession() {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.RemoveSession(c.serverURL) == nil {
		_ = c.store.Save()
	}
}
