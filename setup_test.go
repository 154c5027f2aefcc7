package authcore_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	ac "github.com/panyam/authcore"
	"github.com/panyam/authcore/stores/fs"
)

type sentEmail struct {
	To    string
	Name  string
	Token string
}

// fakeNotifier records emails instead of sending them.
type fakeNotifier struct {
	mu            sync.Mutex
	verifications []sentEmail
	resets        []sentEmail
	err           error
}

func (n *fakeNotifier) SendVerificationEmail(ctx context.Context, toEmail, toName, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, sentEmail{To: toEmail, Name: toName, Token: token})
	return n.err
}

func (n *fakeNotifier) SendResetPasswordEmail(ctx context.Context, toEmail, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, sentEmail{To: toEmail, Token: token})
	return n.err
}

func (n *fakeNotifier) lastVerification(t *testing.T) sentEmail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.verifications) == 0 {
		t.Fatal("no verification email sent")
	}
	return n.verifications[len(n.verifications)-1]
}

func (n *fakeNotifier) lastReset(t *testing.T) sentEmail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		t.Fatal("no reset email sent")
	}
	return n.resets[len(n.resets)-1]
}

// testClock is a settable time source shared by the service and its tokens.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	svc      *ac.AuthService
	store    *fs.AccountStore
	notifier *fakeNotifier
	clock    *testClock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	env := &testEnv{
		store:    fs.NewAccountStore(t.TempDir()),
		notifier: &fakeNotifier{},
		clock:    clock,
	}
	env.svc = (&ac.AuthService{
		Store:    env.store,
		Hasher:   ac.NewBcryptHasher(bcrypt.MinCost),
		Tokens:   &ac.TokenIssuer{Now: clock.Now},
		Notifier: env.notifier,
		Logger:   quietLogger(),
	}).EnsureDefaults()
	return env
}

// register creates an unverified local account and returns the token that
// was emailed for it.
func (e *testEnv) register(t *testing.T, email, password, name string) (*ac.PublicAccount, string) {
	t.Helper()
	pub, err := e.svc.Register(context.Background(), ac.Registration{Email: email, Password: password, Name: name})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	e.svc.Wait()
	return pub, e.notifier.lastVerification(t).Token
}

// registerVerified creates a verified local account.
func (e *testEnv) registerVerified(t *testing.T, email, password string) *ac.PublicAccount {
	t.Helper()
	pub, token := e.register(t, email, password, "Test User")
	if _, err := e.svc.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	return pub
}

func (e *testEnv) account(t *testing.T, id string) *ac.Account {
	t.Helper()
	a, err := e.store.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	return a
}

// fakeProvider resolves codes to canned profiles.
type fakeProvider struct {
	name     string
	profiles map[string]ac.FederatedProfile
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (p *fakeProvider) ResolveFederatedIdentity(ctx context.Context, code string) (*ac.FederatedProfile, error) {
	profile, ok := p.profiles[code]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return &profile, nil
}

type testServer struct {
	*testEnv
	server  *httptest.Server
	handler *ac.Handler
	google  *fakeProvider
}

const (
	testFrontendURL = "http://frontend.test"
	testMobileURL   = "myapp://mobile"
)

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	env := setupTestService(t)
	google := &fakeProvider{name: ac.ProviderGoogle, profiles: map[string]ac.FederatedProfile{}}
	handler := &ac.Handler{
		Service: env.svc,
		Binder: &ac.SessionBinder{
			Sessions: ac.NewSessionManager(ac.SessionOptions{}),
			Accounts: env.store,
		},
		Providers:   ac.NewProviderRegistry(google),
		States:      &ac.StateSigner{Secret: []byte("0123456789abcdef0123456789abcdef"), Issuer: "authcore-test"},
		FrontendURL: testFrontendURL,
		MobileURL:   testMobileURL,
		Logger:      quietLogger(),
	}
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return &testServer{testEnv: env, server: server, handler: handler, google: google}
}

// newBrowser returns a client with its own cookie jar that does not follow
// redirects.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
