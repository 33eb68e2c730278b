package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/auth0-api/internal/authtest"
	"go.uber.org/zap/zaptest"
)

func newTestResolver(t *testing.T, url string, perMinute int) (*Resolver, *MemoryCache) {
	t.Helper()
	cache := NewMemoryCache(time.Hour, 10)
	r, err := NewResolver(Config{
		JWKSURL:           url,
		RequestsPerMinute: perMinute,
		HTTPTimeout:       2 * time.Second,
	}, cache, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r, cache
}

func TestNewResolver(t *testing.T) {
	t.Run("requires jwks url", func(t *testing.T) {
		_, err := NewResolver(Config{}, NewMemoryCache(0, 0), nil)
		assert.Error(t, err)
	})

	t.Run("requires cache", func(t *testing.T) {
		_, err := NewResolver(Config{JWKSURL: "https://example.com"}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		r, err := NewResolver(Config{JWKSURL: "https://example.com"}, NewMemoryCache(0, 0), nil)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, r.httpClient.Timeout)
		assert.Equal(t, 5, r.limiter.Burst())
	})
}

func TestResolve_FetchesAndCaches(t *testing.T) {
	srv := authtest.NewKeyServer(t)
	r, cache := newTestResolver(t, srv.JWKSURL(), 5)
	ctx := context.Background()

	key, err := r.Resolve(ctx, srv.KeyID)
	require.NoError(t, err)
	assert.Equal(t, srv.KeyID, key.KeyID)
	assert.Equal(t, "RS256", key.Algorithm)
	pub, ok := key.Key.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, srv.Key.PublicKey.N, pub.N)
	assert.Equal(t, 1, srv.Fetches())
	assert.Equal(t, 1, cache.Len())

	// Second resolution is served from the cache
	_, err = r.Resolve(ctx, srv.KeyID)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Fetches())
}

func TestResolve_EmptyKid(t *testing.T) {
	srv := authtest.NewKeyServer(t)
	r, _ := newTestResolver(t, srv.JWKSURL(), 5)

	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKeyID)
	assert.Equal(t, 0, srv.Fetches())
}

func TestResolve_UnknownKid(t *testing.T) {
	srv := authtest.NewKeyServer(t)
	r, _ := newTestResolver(t, srv.JWKSURL(), 5)

	_, err := r.Resolve(context.Background(), "unknown-kid")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Contains(t, err.Error(), "unknown-kid")
}

func TestResolve_ProviderErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		srv := authtest.NewKeyServer(t)
		srv.FailWith(http.StatusInternalServerError)
		r, _ := newTestResolver(t, srv.JWKSURL(), 5)

		_, err := r.Resolve(context.Background(), srv.KeyID)
		assert.ErrorIs(t, err, ErrJWKSFetchFailed)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		srv := authtest.NewKeyServer(t)
		url := srv.JWKSURL()
		srv.Close()
		r, _ := newTestResolver(t, url, 5)

		_, err := r.Resolve(context.Background(), authtest.DefaultKeyID)
		assert.ErrorIs(t, err, ErrJWKSFetchFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := authtest.NewKeyServer(t)
		srv.SetDelay(300 * time.Millisecond)
		cache := NewMemoryCache(time.Hour, 10)
		r, err := NewResolver(Config{
			JWKSURL:     srv.JWKSURL(),
			HTTPTimeout: 50 * time.Millisecond,
		}, cache, zaptest.NewLogger(t))
		require.NoError(t, err)

		_, err = r.Resolve(context.Background(), srv.KeyID)
		assert.ErrorIs(t, err, ErrJWKSFetchFailed)
	})

	t.Run("no retry within a call", func(t *testing.T) {
		srv := authtest.NewKeyServer(t)
		srv.FailWith(http.StatusBadGateway)
		r, _ := newTestResolver(t, srv.JWKSURL(), 5)

		_, err := r.Resolve(context.Background(), srv.KeyID)
		require.Error(t, err)
		assert.Equal(t, 1, srv.Fetches())
	})
}

func TestResolve_RateLimit(t *testing.T) {
	srv := authtest.NewKeyServer(t)
	r, _ := newTestResolver(t, srv.JWKSURL(), 2)
	ctx := context.Background()

	// Unknown kids always miss, so each call spends budget
	for i := 0; i < 2; i++ {
		_, err := r.Resolve(ctx, "missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}

	_, err := r.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 2, srv.Fetches())

	// Cached keys keep resolving while the budget is exhausted
	_, err = r.Resolve(ctx, srv.KeyID)
	require.NoError(t, err)
}

func TestResolve_ConcurrentRequestsShareFetches(t *testing.T) {
	srv := authtest.NewKeyServer(t)
	srv.SetDelay(20 * time.Millisecond)
	r, _ := newTestResolver(t, srv.JWKSURL(), 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(ctx, srv.KeyID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, srv.Fetches(), 5)

	before := srv.Fetches()
	for i := 0; i < 20; i++ {
		_, err := r.Resolve(ctx, srv.KeyID)
		require.NoError(t, err)
	}
	assert.Equal(t, before, srv.Fetches(), "cached key must not trigger fetches")
}

func TestResolve_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	srv := authtest.NewKeyServer(t)
	srv.SetDelay(300 * time.Millisecond)
	r, _ := newTestResolver(t, srv.JWKSURL(), 5)

	cancelled, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(cancelled, srv.KeyID)
		leaderErr <- err
	}()

	// Join the in-flight fetch started by the first caller
	time.Sleep(20 * time.Millisecond)
	key, err := r.Resolve(context.Background(), srv.KeyID)
	require.NoError(t, err)
	assert.Equal(t, srv.KeyID, key.KeyID)

	err = <-leaderErr
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, srv.Fetches())
}

func TestResolve_BoundedCacheKeepsResolvedKey(t *testing.T) {
	srv := authtest.NewKeyServer(t)
	for i := 0; i < 6; i++ {
		k := authtest.GenerateKey(t)
		srv.AddKey(fmt.Sprintf("rotated-%d", i), &k.PublicKey, "RS256", "sig")
	}

	for _, kid := range []string{srv.KeyID, "rotated-0", "rotated-5"} {
		t.Run(kid, func(t *testing.T) {
			r, err := NewResolver(Config{
				JWKSURL:           srv.JWKSURL(),
				RequestsPerMinute: 5,
				HTTPTimeout:       2 * time.Second,
			}, NewMemoryCache(time.Hour, 5), zaptest.NewLogger(t))
			require.NoError(t, err)

			before := srv.Fetches()
			for i := 0; i < 20; i++ {
				key, err := r.Resolve(context.Background(), kid)
				require.NoError(t, err)
				assert.Equal(t, kid, key.KeyID)
			}
			assert.Equal(t, 1, srv.Fetches()-before)
		})
	}
}

func TestFetchKeySet_FiltersKeys(t *testing.T) {
	srv := authtest.NewKeyServer(t)
	encKey := authtest.GenerateKey(t)
	srv.AddKey("enc-key", &encKey.PublicKey, "RSA-OAEP", "enc")
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	srv.AddKey("ec-key", &ecKey.PublicKey, "ES256", "sig")

	r, _ := newTestResolver(t, srv.JWKSURL(), 5)
	keys, err := r.FetchKeySet(context.Background())
	require.NoError(t, err)

	kids := make([]string, 0, len(keys))
	for _, k := range keys {
		kids = append(kids, k.KeyID)
	}
	assert.ElementsMatch(t, []string{srv.KeyID, "ec-key"}, kids)
}

func TestResolver_Stats(t *testing.T) {
	srv := authtest.NewKeyServer(t)
	r, _ := newTestResolver(t, srv.JWKSURL(), 5)

	stats := r.Stats()
	assert.Equal(t, int64(0), stats.Fetches)
	assert.True(t, stats.LastFetch.IsZero())

	_, err := r.Resolve(context.Background(), srv.KeyID)
	require.NoError(t, err)

	stats = r.Stats()
	assert.Equal(t, srv.JWKSURL(), stats.JWKSURL)
	assert.Equal(t, int64(1), stats.Fetches)
	assert.Equal(t, 1, stats.CachedKeys)
	assert.False(t, stats.LastFetch.IsZero())
}
