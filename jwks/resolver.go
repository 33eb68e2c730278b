package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	// ErrKeyNotFound is returned when the key set has no signing key for the kid
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrJWKSFetchFailed is returned when the key set endpoint cannot be read
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")

	// ErrRateLimited is returned when the fetch budget for the current minute is spent
	ErrRateLimited = errors.New("jwks request rate limit exceeded")

	// ErrEmptyKeyID is returned when no kid was supplied
	ErrEmptyKeyID = errors.New("empty key id")
)

// maxJWKSBytes bounds the size of a key set response
const maxJWKSBytes = 1 << 20

// Config holds configuration for Resolver
type Config struct {
	JWKSURL           string
	RequestsPerMinute int
	HTTPTimeout       time.Duration
	HTTPClient        *http.Client
}

// Resolver maps key IDs to the identity provider's public signing keys
type Resolver struct {
	jwksURL    string
	httpClient *http.Client
	cache      KeyCache
	limiter    *rate.Limiter
	group      singleflight.Group
	logger     *zap.Logger

	fetches   atomic.Int64
	lastFetch atomic.Pointer[time.Time]
}

// Stats describes resolver activity
type Stats struct {
	JWKSURL     string    `json:"jwks_url"`
	Fetches     int64     `json:"fetches"`
	LastFetch   time.Time `json:"last_fetch,omitempty"`
	CachedKeys  int       `json:"cached_keys"`
	TokensAvail float64   `json:"fetch_budget_remaining"`
}

// NewResolver creates a Resolver backed by cache
func NewResolver(cfg Config, cache KeyCache, logger *zap.Logger) (*Resolver, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwks url is required")
	}
	if cache == nil {
		return nil, errors.New("key cache is required")
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 5
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		jwksURL:    cfg.JWKSURL,
		httpClient: client,
		cache:      cache,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute),
		logger:     logger,
	}, nil
}

// Resolve returns the signing key for kid, fetching the key set on a cache miss
func (r *Resolver) Resolve(ctx context.Context, kid string) (SigningKey, error) {
	if kid == "" {
		return SigningKey{}, ErrEmptyKeyID
	}

	key, ok, err := r.cache.Get(ctx, kid)
	if err != nil {
		// A broken shared cache degrades to fetching from the provider.
		r.logger.Warn("key cache read failed", zap.String("kid", kid), zap.Error(err))
	} else if ok {
		return key, nil
	}

	// Concurrent misses share one fetch. It runs detached from any single
	// caller so a cancelled request cannot fail the others waiting on it;
	// the HTTP client timeout bounds it instead.
	ch := r.group.DoChan("jwks", func() (interface{}, error) {
		return r.fetchAndStore(context.WithoutCancel(ctx))
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return SigningKey{}, fmt.Errorf("resolve kid %q: %w", kid, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return SigningKey{}, res.Err
	}

	for _, k := range res.Val.([]SigningKey) {
		if k.KeyID == kid {
			// Rewrite the requested key so a bounded cache keeps it
			if err := r.cache.Put(ctx, k); err != nil {
				r.logger.Warn("key cache write failed", zap.String("kid", kid), zap.Error(err))
			}
			return k, nil
		}
	}
	return SigningKey{}, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// FetchKeySet downloads the key set without consulting the cache.
// It still spends from the fetch budget.
func (r *Resolver) FetchKeySet(ctx context.Context) ([]SigningKey, error) {
	if !r.limiter.Allow() {
		return nil, ErrRateLimited
	}
	return r.fetch(ctx)
}

func (r *Resolver) fetchAndStore(ctx context.Context) ([]SigningKey, error) {
	keys, err := r.FetchKeySet(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(ctx, keys...); err != nil {
		r.logger.Warn("key cache write failed", zap.Error(err))
	}
	return keys, nil
}

func (r *Resolver) fetch(ctx context.Context) ([]SigningKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	r.fetches.Add(1)
	now := time.Now()
	r.lastFetch.Store(&now)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}

	keys := make([]SigningKey, 0, len(doc.Keys))
	for _, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(raw); err != nil {
			r.logger.Debug("skipping unparsable jwk", zap.Error(err))
			continue
		}
		if !isSigningKey(jwk) {
			continue
		}
		keys = append(keys, signingKeyFromJWK(jwk))
	}

	r.logger.Debug("fetched jwks",
		zap.String("url", r.jwksURL),
		zap.Int("keys", len(keys)))

	return keys, nil
}

// Stats returns fetch counters and, for a MemoryCache, the live key count
func (r *Resolver) Stats() Stats {
	s := Stats{
		JWKSURL:     r.jwksURL,
		Fetches:     r.fetches.Load(),
		TokensAvail: r.limiter.Tokens(),
	}
	if t := r.lastFetch.Load(); t != nil {
		s.LastFetch = *t
	}
	if mc, ok := r.cache.(*MemoryCache); ok {
		s.CachedKeys = mc.Len()
	}
	return s
}

// isSigningKey keeps public keys with a kid meant for signatures
func isSigningKey(jwk jose.JSONWebKey) bool {
	if jwk.KeyID == "" || !jwk.Valid() || !jwk.IsPublic() {
		return false
	}
	return jwk.Use == "" || jwk.Use == "sig"
}

func signingKeyFromJWK(jwk jose.JSONWebKey) SigningKey {
	return SigningKey{
		KeyID:     jwk.KeyID,
		Algorithm: jwk.Algorithm,
		Use:       jwk.Use,
		Key:       jwk.Key,
	}
}
