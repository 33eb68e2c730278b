package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/upb/auth0-api/auth"
	"github.com/upb/auth0-api/config"
	"github.com/upb/auth0-api/jwks"
	"github.com/upb/auth0-api/middleware"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Signing keys
	KeyCache jwks.KeyCache
	Resolver *jwks.Resolver

	// Auth
	Verifier       *auth.Verifier
	AuthMiddleware *middleware.AuthMiddleware

	httpClient *http.Client
}

// Option customizes NewDependencies
type Option func(*Dependencies)

// WithHTTPClient sets the client used for discovery and JWKS requests
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dependencies) {
		d.httpClient = client
	}
}

// WithKeyCache replaces the configured key cache
func WithKeyCache(cache jwks.KeyCache) Option {
	return func(d *Dependencies) {
		d.KeyCache = cache
	}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(deps)
	}
	if deps.httpClient == nil {
		deps.httpClient = &http.Client{Timeout: cfg.JWKS.HTTPTimeout}
	}

	if err := deps.initKeyCache(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize key cache: %w", err)
	}

	if err := deps.initResolver(ctx); err != nil {
		_ = deps.closeKeyCache()
		return nil, fmt.Errorf("failed to initialize key resolver: %w", err)
	}

	if err := deps.initAuth(); err != nil {
		_ = deps.closeKeyCache()
		return nil, fmt.Errorf("failed to initialize verifier: %w", err)
	}

	if cfg.IsProduction() && slices.Contains(cfg.CORS.AllowedOrigins, "*") {
		logger.Warn("CORS allows any origin in production",
			zap.Strings("allowed_origins", cfg.CORS.AllowedOrigins))
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("issuer", deps.Verifier.Issuer()),
		zap.String("audience", deps.Verifier.Audience()),
		zap.String("jwks_url", deps.Resolver.Stats().JWKSURL))
	return deps, nil
}

// initKeyCache builds the configured key cache unless one was injected
func (d *Dependencies) initKeyCache(ctx context.Context) error {
	if d.KeyCache != nil {
		return nil
	}

	kc := d.Config.KeyCache
	switch kc.Backend {
	case "redis":
		cache, err := jwks.NewRedisCache(ctx, jwks.RedisConfig{
			Addr:      kc.RedisAddr,
			KeyPrefix: kc.RedisKeyPrefix,
			TTL:       d.Config.JWKS.CacheTTL,
		})
		if err != nil {
			return err
		}
		d.KeyCache = cache
		d.Logger.Info("using redis key cache", zap.String("addr", kc.RedisAddr))
	case "", "memory":
		d.KeyCache = jwks.NewMemoryCache(d.Config.JWKS.CacheTTL, d.Config.JWKS.CacheMaxEntries)
		d.Logger.Info("using in-memory key cache",
			zap.Duration("ttl", d.Config.JWKS.CacheTTL),
			zap.Int("max_entries", d.Config.JWKS.CacheMaxEntries))
	default:
		return fmt.Errorf("unknown key cache backend %q", kc.Backend)
	}
	return nil
}

// initResolver resolves the JWKS location and builds the key resolver
func (d *Dependencies) initResolver(ctx context.Context) error {
	jwksURL := d.Config.Auth0.KeySetURL()

	if d.Config.JWKS.Discovery && d.Config.Auth0.JWKSURL == "" {
		discovered, err := jwks.DiscoverJWKSURL(ctx, d.httpClient, d.Config.Auth0.IssuerURL())
		if err != nil {
			return err
		}
		jwksURL = discovered
		d.Logger.Info("discovered jwks_uri", zap.String("jwks_url", jwksURL))
	}

	resolver, err := jwks.NewResolver(jwks.Config{
		JWKSURL:           jwksURL,
		RequestsPerMinute: d.Config.JWKS.RequestsPerMinute,
		HTTPTimeout:       d.Config.JWKS.HTTPTimeout,
		HTTPClient:        d.httpClient,
	}, d.KeyCache, d.Logger.Named("jwks"))
	if err != nil {
		return err
	}

	d.Resolver = resolver
	return nil
}

func (d *Dependencies) initAuth() error {
	verifier, err := auth.NewVerifier(auth.Config{
		Issuer:    d.Config.Auth0.IssuerURL(),
		Audience:  d.Config.Auth0.Audience,
		Algorithm: auth.DefaultAlgorithm,
		Leeway:    d.Config.JWKS.Leeway,
	}, d.Resolver)
	if err != nil {
		return err
	}

	d.Verifier = verifier
	d.AuthMiddleware = middleware.NewAuthMiddleware(verifier, d.Logger.Named("auth"))
	return nil
}

func (d *Dependencies) closeKeyCache() error {
	if closer, ok := d.KeyCache.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if err := d.closeKeyCache(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close key cache: %w", err))
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
