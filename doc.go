// Package authcore is an account identity and credential lifecycle engine.
//
// Every person has exactly one Account, keyed by a normalized email. An
// account can be reached through a local email/password credential and
// through any number of federated providers (Google, Facebook, Instagram).
// Signing in with a provider whose email matches an existing account links
// the provider to that account instead of creating a second one.
//
// # Components
//
// CredentialStore persists accounts. Backends live in stores/fs (JSON
// files), stores/gorm (SQL via GORM) and stores/gae (Cloud Datastore).
//
// AuthService runs the flows: Register, VerifyEmail, Login,
// ResolveFederated, ForgotPassword, ResetPassword and ChangePassword. It
// hashes passwords through a bounded HashPool, mints single-use tokens with
// a TokenIssuer and hands emails to a Notifier.
//
// SessionBinder stores the authenticated account id in an scs session and
// reloads the account on every request.
//
// Handler exposes the flows over HTTP on a gorilla/mux router. Provider
// adapters from the oauth2 package plug into a ProviderRegistry.
//
// # Basic Usage
//
//	store := fs.NewAccountStore("/var/lib/authcore")
//	svc := authcore.NewAuthService(store, &authcore.SMTPNotifier{...})
//	sessions := authcore.NewSessionManager(authcore.SessionOptions{Production: true})
//	h := &authcore.Handler{
//	    Service:     svc,
//	    Binder:      &authcore.SessionBinder{Sessions: sessions, Accounts: store},
//	    Providers:   authcore.NewProviderRegistry(googleAdapter),
//	    States:      &authcore.StateSigner{Secret: secret},
//	    FrontendURL: "https://app.example.com",
//	}
//	http.ListenAndServe(":5000", h.Router())
//
// # Error Outcomes
//
// Login reports ErrInvalidCredentials whether the email is unknown or the
// password is wrong, and ErrAccountNotVerified only after the password
// matched. ForgotPassword distinguishes ErrUnknownEmail from
// ErrAccountNotVerified. Token flows fail with ErrInvalidOrExpiredToken.
package authcore
