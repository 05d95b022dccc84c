// Package config loads the memberauth server configuration from MEMBERAUTH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	ma "github.com/panyam/memberauth"
)

// Store kinds accepted by MEMBERAUTH_STORE
const (
	StoreMemory       = "memory"
	StoreFS           = "fs"
	StoreSQLite       = "sqlite"
	StorePostgres     = "postgres"
	StoreGormPostgres = "gorm-postgres"
	StoreRedis        = "redis"
	StoreDatastore    = "datastore"
)

// ProviderConfig holds OAuth client credentials for one identity provider.
// The provider accepts federated logins whenever it is configured at all;
// the browser code flow is mounted only when both client fields are set.
type ProviderConfig struct {
	Enabled      bool   `env:"ENABLED"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// HasCodeFlow reports whether both client credentials are present
func (p ProviderConfig) HasCodeFlow() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type Config struct {
	Addr      string `env:"MEMBERAUTH_ADDR" envDefault:":8080"`
	GRPCAddr  string `env:"MEMBERAUTH_GRPC_ADDR"`
	PublicURL string `env:"MEMBERAUTH_PUBLIC_URL" envDefault:"http://localhost:8080"`

	SigningKey    string        `env:"MEMBERAUTH_SIGNING_KEY,unset"`
	SigningAlg    string        `env:"MEMBERAUTH_SIGNING_ALG" envDefault:"HS256"`
	TokenLifetime time.Duration `env:"MEMBERAUTH_TOKEN_LIFETIME" envDefault:"1h"`
	TokenIssuer   string        `env:"MEMBERAUTH_TOKEN_ISSUER"`

	Hasher     string `env:"MEMBERAUTH_HASHER" envDefault:"bcrypt"`
	BcryptCost int    `env:"MEMBERAUTH_BCRYPT_COST" envDefault:"10"`

	Store              string `env:"MEMBERAUTH_STORE" envDefault:"fs"`
	StoragePath        string `env:"MEMBERAUTH_STORAGE_PATH" envDefault:"./data"`
	DSN                string `env:"MEMBERAUTH_DSN"`
	RedisAddr          string `env:"MEMBERAUTH_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix        string `env:"MEMBERAUTH_REDIS_PREFIX" envDefault:"memberauth:"`
	DatastoreProject   string `env:"MEMBERAUTH_DATASTORE_PROJECT"`
	DatastoreNamespace string `env:"MEMBERAUTH_DATASTORE_NAMESPACE"`

	LogLevel  slog.Level `env:"MEMBERAUTH_LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"MEMBERAUTH_LOG_FORMAT" envDefault:"json"`

	Kakao  ProviderConfig `envPrefix:"MEMBERAUTH_KAKAO_"`
	Google ProviderConfig `envPrefix:"MEMBERAUTH_GOOGLE_"`
	Github ProviderConfig `envPrefix:"MEMBERAUTH_GITHUB_"`

	OIDCIssuer   string `env:"MEMBERAUTH_OIDC_ISSUER"`
	OIDCClientID string `env:"MEMBERAUTH_OIDC_CLIENT_ID"`
}

// Load parses the environment and validates the result
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.SigningKey == "" {
		errs = append(errs, errors.New("MEMBERAUTH_SIGNING_KEY is required"))
	}
	if _, err := ma.NewHasher(c.Hasher); err != nil {
		errs = append(errs, err)
	}
	if c.TokenLifetime <= 0 {
		errs = append(errs, fmt.Errorf("token lifetime must be positive, got %v", c.TokenLifetime))
	}

	switch c.Store {
	case StoreMemory, StoreFS, StoreRedis:
	case StoreSQLite:
		if c.DSN == "" && c.StoragePath == "" {
			errs = append(errs, errors.New("sqlite store needs MEMBERAUTH_DSN or MEMBERAUTH_STORAGE_PATH"))
		}
	case StorePostgres, StoreGormPostgres:
		if c.DSN == "" {
			errs = append(errs, fmt.Errorf("%s store needs MEMBERAUTH_DSN", c.Store))
		}
	case StoreDatastore:
		if c.DatastoreProject == "" {
			errs = append(errs, errors.New("datastore store needs MEMBERAUTH_DATASTORE_PROJECT"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	if (c.OIDCIssuer == "") != (c.OIDCClientID == "") {
		errs = append(errs, errors.New("MEMBERAUTH_OIDC_ISSUER and MEMBERAUTH_OIDC_CLIENT_ID must be set together"))
	}
	return errors.Join(errs...)
}

// TokenConfig builds the issuer configuration
func (c *Config) TokenConfig() ma.TokenConfig {
	return ma.TokenConfig{
		SigningKey: []byte(c.SigningKey),
		Lifetime:   c.TokenLifetime,
		Issuer:     c.TokenIssuer,
		SigningAlg: c.SigningAlg,
	}
}

// NewHasher builds the configured credential hasher
func (c *Config) NewHasher() (ma.Hasher, error) {
	if c.Hasher == ma.HasherBcrypt {
		return ma.NewBcryptHasher(c.BcryptCost), nil
	}
	return ma.NewHasher(c.Hasher)
}
