package authcore_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	ac "github.com/panyam/authcore"
)

// startProviderSignIn follows the first leg of a provider sign-in and
// returns the state handed to the provider.
func (ts *testServer) startProviderSignIn(t *testing.T, browser *http.Client, client string) string {
	t.Helper()
	target := ts.url("/google")
	if client != "" {
		target += "?state=" + client
	}
	resp, _ := call(t, browser, http.MethodGet, target, nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("redirect status = %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Host != "provider.test" {
		t.Fatalf("redirected to %s", loc)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("no state in provider redirect")
	}
	return state
}

// finishProviderSignIn hits the callback and returns where it redirected.
func (ts *testServer) finishProviderSignIn(t *testing.T, browser *http.Client, query url.Values) *url.URL {
	t.Helper()
	resp, _ := call(t, browser, http.MethodGet, ts.url("/google/callback?"+query.Encode()), nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("callback status = %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	return loc
}

func successUser(t *testing.T, loc *url.URL) ac.PublicAccount {
	t.Helper()
	if !strings.HasSuffix(loc.Path, "/auth/success") {
		t.Fatalf("redirected to %s, want the success page", loc)
	}
	var user ac.PublicAccount
	if err := json.Unmarshal([]byte(loc.Query().Get("user")), &user); err != nil {
		t.Fatalf("decode user param: %v", err)
	}
	return user
}

func TestProviderSignInCreatesAccount(t *testing.T) {
	ts := setupTestServer(t)
	ts.google.profiles["code-1"] = ac.FederatedProfile{
		Provider: ac.ProviderGoogle, ProviderID: "g-100", Email: "Kai@Example.com", Name: "Kai",
	}
	browser := newBrowser(t)

	state := ts.startProviderSignIn(t, browser, "")
	loc := ts.finishProviderSignIn(t, browser, url.Values{"state": {state}, "code": {"code-1"}})

	if got := loc.Scheme + "://" + loc.Host; got != testFrontendURL {
		t.Errorf("landed on %s, want %s", got, testFrontendURL)
	}
	user := successUser(t, loc)
	if user.Email != "kai@example.com" || user.Name != "Kai" || user.ID == "" {
		t.Errorf("user = %+v", user)
	}

	resp, body := call(t, browser, http.MethodGet, ts.url("/current"), nil)
	expectStatus(t, resp, body, http.StatusOK, "")
	if userEmail(body) != "kai@example.com" {
		t.Errorf("current = %v", body)
	}

	a := ts.account(t, user.ID)
	if !a.IsVerified || a.HasProvider(ac.ProviderLocal) {
		t.Errorf("federated account = %+v", a)
	}
}

func TestProviderSignInMobileClient(t *testing.T) {
	ts := setupTestServer(t)
	ts.google.profiles["code-m"] = ac.FederatedProfile{
		Provider: ac.ProviderGoogle, ProviderID: "g-200", Email: "mo@example.com", Name: "Mo",
	}
	browser := newBrowser(t)

	state := ts.startProviderSignIn(t, browser, ac.ClientMobile)
	loc := ts.finishProviderSignIn(t, browser, url.Values{"state": {state}, "code": {"code-m"}})
	if !strings.HasPrefix(loc.String(), testMobileURL+"/auth/success?") {
		t.Errorf("landed on %s, want the mobile success page", loc)
	}
	if user := successUser(t, loc); user.Email != "mo@example.com" {
		t.Errorf("user = %+v", user)
	}
}

func TestProviderSignInLinksExistingAccount(t *testing.T) {
	ts := setupTestServer(t)
	local := ts.registerVerified(t, "lena@example.com", "password123")
	ts.google.profiles["code-l"] = ac.FederatedProfile{
		Provider: ac.ProviderGoogle, ProviderID: "g-300", Email: "lena@example.com", Name: "Lena G",
	}
	browser := newBrowser(t)

	state := ts.startProviderSignIn(t, browser, "")
	user := successUser(t, ts.finishProviderSignIn(t, browser, url.Values{"state": {state}, "code": {"code-l"}}))
	if user.ID != local.ID {
		t.Errorf("signed in as %s, want existing account %s", user.ID, local.ID)
	}
	a := ts.account(t, local.ID)
	if !a.HasProvider(ac.ProviderLocal) || !a.HasProvider(ac.ProviderGoogle) {
		t.Errorf("providers = %+v", a.Providers)
	}
	ts.login(t, newBrowser(t), "lena@example.com", "password123")
}

func TestProviderCallbackFailures(t *testing.T) {
	ts := setupTestServer(t)
	ts.google.profiles["good"] = ac.FederatedProfile{
		Provider: ac.ProviderGoogle, ProviderID: "g-400", Email: "nia@example.com",
	}

	t.Run("tampered state", func(t *testing.T) {
		browser := newBrowser(t)
		state := ts.startProviderSignIn(t, browser, "")
		loc := ts.finishProviderSignIn(t, browser, url.Values{"state": {state + "x"}, "code": {"good"}})
		if loc.Path != "/login" {
			t.Errorf("redirected to %s, want /login", loc)
		}
	})

	t.Run("state from another browser", func(t *testing.T) {
		victim, attacker := newBrowser(t), newBrowser(t)
		ts.startProviderSignIn(t, victim, "")
		state := ts.startProviderSignIn(t, attacker, "")
		loc := ts.finishProviderSignIn(t, victim, url.Values{"state": {state}, "code": {"good"}})
		if loc.Path != "/login" {
			t.Errorf("redirected to %s, want /login", loc)
		}
	})

	t.Run("replayed callback", func(t *testing.T) {
		browser := newBrowser(t)
		state := ts.startProviderSignIn(t, browser, "")
		query := url.Values{"state": {state}, "code": {"good"}}
		successUser(t, ts.finishProviderSignIn(t, browser, query))
		if loc := ts.finishProviderSignIn(t, browser, query); loc.Path != "/login" {
			t.Errorf("replay redirected to %s, want /login", loc)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		browser := newBrowser(t)
		state := ts.startProviderSignIn(t, browser, "")
		loc := ts.finishProviderSignIn(t, browser, url.Values{"state": {state}, "error": {"access_denied"}})
		if loc.Path != "/login" {
			t.Errorf("redirected to %s, want /login", loc)
		}
	})

	t.Run("bad code", func(t *testing.T) {
		browser := newBrowser(t)
		state := ts.startProviderSignIn(t, browser, "")
		loc := ts.finishProviderSignIn(t, browser, url.Values{"state": {state}, "code": {"unknown"}})
		if loc.Path != "/login" {
			t.Errorf("redirected to %s, want /login", loc)
		}
		resp, _ := call(t, browser, http.MethodGet, ts.url("/current"), nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("failed sign-in left a session: status %d", resp.StatusCode)
		}
	})
}

func TestUnknownProvider(t *testing.T) {
	ts := setupTestServer(t)
	for _, path := range []string{"/facebook", "/facebook/callback"} {
		resp, body := call(t, newBrowser(t), http.MethodGet, ts.url(path), nil)
		expectStatus(t, resp, body, http.StatusNotFound, "Unknown provider")
	}
}
