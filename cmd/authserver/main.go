// Command authserver runs the account service over HTTP.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/datastore"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ac "github.com/panyam/authcore"
	"github.com/panyam/authcore/oauth2"
	"github.com/panyam/authcore/stores/fs"
	"github.com/panyam/authcore/stores/gae"
	gormstore "github.com/panyam/authcore/stores/gorm"
)

func main() {
	cfg, err := LoadConfig()
	log := newLogger(cfg)
	slog.SetDefault(log)
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("authserver failed", "err", err)
		os.Exit(1)
	}
	log.Info("authserver stopped cleanly")
}

func newLogger(cfg Config) *slog.Logger {
	if cfg.Production() {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(ctx context.Context, cfg Config, log *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	hasher, err := newHasher(cfg)
	if err != nil {
		return err
	}
	svc := &ac.AuthService{
		Store:    store,
		Hasher:   hasher,
		Notifier: newNotifier(cfg, log),
		Logger:   log,
	}
	svc.EnsureDefaults()

	providers, err := newProviders(ctx, cfg)
	if err != nil {
		return err
	}
	states, err := newStateSigner(cfg)
	if err != nil {
		return err
	}

	sessions := ac.NewSessionManager(ac.SessionOptions{
		Lifetime:   cfg.SessionLifetime,
		CookieName: cfg.SessionCookie,
		Production: cfg.Production(),
	})
	handler := &ac.Handler{
		Service:     svc,
		Binder:      &ac.SessionBinder{Sessions: sessions, Accounts: store},
		Providers:   providers,
		States:      states,
		FrontendURL: cfg.FrontendURL,
		MobileURL:   cfg.MobileURL,
		Logger:      log,
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.Router(),
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("authserver started", "port", cfg.Port, "providers", providers.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	// let in-flight verification and reset emails finish
	if err := svc.Drain(shutdownCtx); err != nil {
		log.Warn("emails still sending at shutdown", "err", err)
	}
	return nil
}

// openStore picks the backend from the configuration, in order:
// PostgreSQL DSN, Datastore project, file store, then a SQLite file.
func openStore(ctx context.Context, cfg Config, log *slog.Logger) (ac.CredentialStore, func(), error) {
	switch {
	case cfg.usesPostgres():
		log.Info("using postgres store")
		return openGorm(postgres.Open(cfg.DatabaseDSN))
	case cfg.DatastoreProject != "":
		log.Info("using datastore store", "project", cfg.DatastoreProject, "namespace", cfg.DatastoreNS)
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore client: %w", err)
		}
		return gae.NewAccountStore(client, cfg.DatastoreNS), func() { client.Close() }, nil
	case cfg.StoragePath != "":
		log.Info("using file store", "path", cfg.StoragePath)
		return fs.NewAccountStore(cfg.StoragePath), func() {}, nil
	default:
		log.Info("using sqlite store", "path", cfg.SQLitePath)
		return openGorm(sqlite.Open(cfg.SQLitePath))
	}
}

func openGorm(dialector gorm.Dialector) (ac.CredentialStore, func(), error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return gormstore.NewAccountStore(db), func() { sqlDB.Close() }, nil
}

func newHasher(cfg Config) (ac.Hasher, error) {
	switch cfg.PasswordHasher {
	case "argon2id":
		return ac.NewArgon2Hasher(), nil
	case "bcrypt":
		return ac.NewBcryptHasher(cfg.BcryptCost), nil
	}
	return nil, fmt.Errorf("unknown password hasher %q", cfg.PasswordHasher)
}

func newNotifier(cfg Config, log *slog.Logger) ac.Notifier {
	links := ac.LinkBuilder{FrontendURL: cfg.FrontendURL}
	if cfg.SMTPHost == "" {
		return &ac.ConsoleNotifier{Links: links, Logger: log}
	}
	return &ac.SMTPNotifier{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		Links:    links,
	}
}

// newProviders registers each provider whose client id is configured.
func newProviders(ctx context.Context, cfg Config) (*ac.ProviderRegistry, error) {
	registry := ac.NewProviderRegistry()
	if cfg.GoogleClientID != "" {
		g, err := oauth2.NewGoogle(ctx, oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			CallbackURL:  cfg.GoogleCallbackURL,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(g)
	}
	if cfg.FacebookAppID != "" {
		f, err := oauth2.NewFacebook(oauth2.Config{
			ClientID:     cfg.FacebookAppID,
			ClientSecret: cfg.FacebookAppSecret,
			CallbackURL:  cfg.FacebookCallbackURL,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(f)
	}
	if cfg.InstagramAppID != "" {
		i, err := oauth2.NewInstagram(oauth2.Config{
			ClientID:     cfg.InstagramAppID,
			ClientSecret: cfg.InstagramAppSecret,
			CallbackURL:  cfg.InstagramCallbackURL,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(i)
	}
	return registry, nil
}

// newStateSigner falls back to a per-process key when no provider is
// configured and no secret was given.
func newStateSigner(cfg Config) (*ac.StateSigner, error) {
	secret := []byte(cfg.OAuthStateSecret)
	if len(secret) == 0 {
		secret = make([]byte, minStateSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
	}
	return &ac.StateSigner{Secret: secret, Issuer: "authcore"}, nil
}
