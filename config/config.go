package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/upb/auth0-api/utils"
)

// Config represents the complete application configuration
type Config struct {
	Environment   string `env:"ENVIRONMENT,default=development" validate:"required"`
	Server        ServerConfig
	Auth0         Auth0Config
	JWKS          JWKSConfig
	KeyCache      KeyCacheConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST,default=0.0.0.0"`
	Port            int           `env:"PORT,default=3010" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=30s" validate:"gt=0"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	TLS             TLSConfig
}

// TLSConfig holds optional HTTPS settings
type TLSConfig struct {
	Enabled  bool   `env:"TLS_ENABLED,default=false"`
	CertFile string `env:"TLS_CERT_FILE" validate:"required_if=Enabled true"`
	KeyFile  string `env:"TLS_KEY_FILE" validate:"required_if=Enabled true"`
}

// Auth0Config identifies the tenant and the API tokens must be issued for
type Auth0Config struct {
	Domain   string `env:"AUTH0_DOMAIN" validate:"required"`
	Audience string `env:"AUTH0_AUDIENCE" validate:"required"`
	Issuer   string `env:"AUTH0_ISSUER" validate:"omitempty,url"`
	JWKSURL  string `env:"AUTH0_JWKS_URL" validate:"omitempty,url"`
}

// JWKSConfig tunes signing key retrieval
type JWKSConfig struct {
	Discovery         bool          `env:"JWKS_DISCOVERY,default=false"`
	RequestsPerMinute int           `env:"JWKS_REQUESTS_PER_MINUTE,default=5" validate:"gt=0"`
	CacheTTL          time.Duration `env:"JWKS_CACHE_TTL,default=10m" validate:"min=1s"`
	CacheMaxEntries   int           `env:"JWKS_CACHE_MAX_ENTRIES,default=5" validate:"gt=0"`
	HTTPTimeout       time.Duration `env:"JWKS_HTTP_TIMEOUT,default=30s" validate:"gt=0"`
	Leeway            time.Duration `env:"JWT_LEEWAY,default=0s" validate:"gte=0"`
}

// KeyCacheConfig selects where resolved signing keys are kept
type KeyCacheConfig struct {
	Backend        string `env:"KEY_CACHE_BACKEND,default=memory" validate:"oneof=memory redis"`
	RedisAddr      string `env:"REDIS_ADDR" validate:"required_if=Backend redis"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=auth0-api:jwks:"`
}

// CORSConfig holds cross-origin settings. Origins are separated by ";".
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=*" validate:"min=1"`
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT,default=json" validate:"oneof=json console"`
}

// ConfigError lists every missing or invalid environment variable
type ConfigError struct {
	Fields map[string]string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	names := e.Variables()
	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, e.Fields[name])
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Variables returns the offending variable names in sorted order
func (e *ConfigError) Variables() []string {
	return (&utils.ValidationError{Fields: e.Fields}).FieldNames()
}

// New loads configuration. envFile, when set, must exist; otherwise the
// nearest .env found walking up from the working directory is used if any.
// A file that exists but cannot be parsed is an error either way.
// Variables already present in the environment win over the file.
func New(envFile string) (*Config, error) {
	if envFile == "" {
		if wd, err := os.Getwd(); err == nil {
			envFile, _ = findEnv(wd)
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	return FromEnv()
}

// FromEnv decodes and validates configuration from the process environment
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	err := utils.ValidateStruct(c)
	if err == nil {
		return nil
	}

	if utils.IsValidationError(err) {
		return &ConfigError{Fields: utils.GetValidationFields(err)}
	}
	return fmt.Errorf("config validation failed: %w", err)
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Host returns the bare tenant host, tolerating a scheme or trailing slash
func (c *Auth0Config) Host() string {
	host := strings.TrimSpace(c.Domain)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

// IssuerURL returns the expected iss claim
func (c *Auth0Config) IssuerURL() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return "https://" + c.Host() + "/"
}

// KeySetURL returns the configured JWKS location, defaulting to the tenant's
// well-known path
func (c *Auth0Config) KeySetURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return "https://" + c.Host() + "/.well-known/jwks.json"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// findEnv returns the first .env found in dir or any of its parents
func findEnv(dir string) (string, bool) {
	for {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
