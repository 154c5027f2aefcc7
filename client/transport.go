package client

import (
	"net/http"
	"time"
)

// DefaultCookieName matches the server's default session cookie.
const DefaultCookieName = "session"

// SessionTransport attaches a fixed session cookie to every request. It
// suits callers that obtained the token elsewhere and never log in.
type SessionTransport struct {
	Base       http.RoundTripper
	CookieName string
	Token      string
}

func (t *SessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	name := t.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	if t.Token != "" {
		req = withSessionCookie(req, name, t.Token)
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewSessionTransport creates a SessionTransport over http.DefaultTransport.
func NewSessionTransport(token string) *SessionTransport {
	return &SessionTransport{Base: http.DefaultTransport, Token: token}
}

// withSessionCookie returns a clone of req carrying the cookie unless one
// with that name is already present.
func withSessionCookie(req *http.Request, name, token string) *http.Request {
	if _, err := req.Cookie(name); err == nil {
		return req
	}
	req = req.Clone(req.Context())
	req.AddCookie(&http.Cookie{Name: name, Value: token})
	return req
}

// persistTransport restores the stored session on outgoing requests and
// records every session cookie the server sets.
type persistTransport struct {
	client *AuthClient
	base   http.RoundTripper
}

func (t *persistTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c := t.client
	if cred := c.storedSession(); cred != nil {
		req = withSessionCookie(req, c.cookieName, cred.Token)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name != c.cookieName {
			continue
		}
		if cookie.Value == "" || cookie.MaxAge < 0 || (!cookie.Expires.IsZero() && cookie.Expires.Before(time.Now())) {
			c.forgetSession()
		} else {
			c.rememberSession(cookie.Value, cookie.Expires)
		}
	}
	return resp, nil
}
