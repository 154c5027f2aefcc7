package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// minStateSecretLength is the shortest accepted HMAC key for OAuth state.
const minStateSecretLength = 32

// Config is read from the environment.
type Config struct {
	Port    int    `env:"PORT"     envDefault:"5000"`
	NodeEnv string `env:"NODE_ENV"`
	AppEnv  string `env:"APP_ENV"`

	DatabaseDSN      string `env:"DATABASE_DSN"`
	SQLitePath       string `env:"SQLITE_PATH"       envDefault:"authcore.db"`
	DatastoreProject string `env:"DATASTORE_PROJECT"`
	DatastoreNS      string `env:"DATASTORE_NAMESPACE"`
	StoragePath      string `env:"AUTH_STORAGE_PATH"`

	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"`
	SessionCookie   string        `env:"SESSION_COOKIE"   envDefault:"session"`

	FrontendURL      string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	MobileURL        string `env:"MOBILE_URL"`
	OAuthStateSecret string `env:"OAUTH_STATE_SECRET"`

	PasswordHasher string `env:"PASSWORD_HASHER" envDefault:"bcrypt"`
	BcryptCost     int    `env:"BCRYPT_COST"     envDefault:"12"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`

	FacebookAppID       string `env:"FACEBOOK_APP_ID"`
	FacebookAppSecret   string `env:"FACEBOOK_APP_SECRET"`
	FacebookCallbackURL string `env:"FACEBOOK_CALLBACK_URL"`

	InstagramAppID       string `env:"INSTAGRAM_APP_ID"`
	InstagramAppSecret   string `env:"INSTAGRAM_APP_SECRET"`
	InstagramCallbackURL string `env:"INSTAGRAM_CALLBACK_URL"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	EmailFrom    string `env:"EMAIL_FROM" envDefault:"no-reply@localhost"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadConfig parses the environment and validates the result.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Production is true when either NODE_ENV or APP_ENV says so.
func (c Config) Production() bool {
	return strings.EqualFold(c.NodeEnv, "production") || strings.EqualFold(c.AppEnv, "production")
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.SessionLifetime <= 0 {
		errs = append(errs, errors.New("SESSION_LIFETIME must be positive"))
	}
	if c.hasProviders() && len(c.OAuthStateSecret) < minStateSecretLength {
		errs = append(errs, fmt.Errorf("OAUTH_STATE_SECRET must be at least %d bytes", minStateSecretLength))
	}
	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_HASHER must be bcrypt or argon2id, got %q", c.PasswordHasher))
	}
	return errors.Join(errs...)
}

func (c Config) hasProviders() bool {
	return c.GoogleClientID != "" || c.FacebookAppID != "" || c.InstagramAppID != ""
}

// usesPostgres reports whether DATABASE_DSN names a PostgreSQL server.
func (c Config) usesPostgres() bool {
	return strings.HasPrefix(c.DatabaseDSN, "postgres://") ||
		strings.HasPrefix(c.DatabaseDSN, "postgresql://") ||
		strings.Contains(c.DatabaseDSN, "host=")
}
