// Package authtest provides an in-process identity provider for tests: a
// JWKS endpoint, an OpenID configuration document and token signing helpers.
package authtest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultKeyID is the kid of the key created by NewKeyServer
const DefaultKeyID = "test-kid-123"

// DefaultAudience is a convenient audience value for tests
const DefaultAudience = "https://api.example.com"

// KeyServer serves a JWKS document and OpenID discovery metadata
type KeyServer struct {
	*httptest.Server

	Key   *rsa.PrivateKey
	KeyID string

	fetches atomic.Int64
	mu      sync.Mutex
	keys    []jose.JSONWebKey
	status  int
	delay   time.Duration
}

// NewKeyServer starts a KeyServer publishing one RS256 key under DefaultKeyID.
// The server is closed when the test ends.
func NewKeyServer(t testing.TB) *KeyServer {
	t.Helper()

	s := &KeyServer{
		Key:    GenerateKey(t),
		KeyID:  DefaultKeyID,
		status: http.StatusOK,
	}
	s.AddKey(s.KeyID, &s.Key.PublicKey, "RS256", "sig")

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", s.serveJWKS)
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                s.Issuer(),
			"jwks_uri":                              s.JWKSURL(),
			"authorization_endpoint":                s.URL + "/authorize",
			"token_endpoint":                        s.URL + "/oauth/token",
			"response_types_supported":              []string{"code"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *KeyServer) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	s.fetches.Add(1)

	s.mu.Lock()
	status, delay := s.status, s.delay
	set := jose.JSONWebKeySet{Keys: append([]jose.JSONWebKey(nil), s.keys...)}
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

// Issuer returns the issuer identifier, with a trailing slash as Auth0 uses
func (s *KeyServer) Issuer() string { return s.URL + "/" }

// JWKSURL returns the key set endpoint
func (s *KeyServer) JWKSURL() string { return s.URL + "/.well-known/jwks.json" }

// Fetches returns how many times the key set was requested
func (s *KeyServer) Fetches() int { return int(s.fetches.Load()) }

// AddKey publishes an extra public key
func (s *KeyServer) AddKey(kid string, pub crypto.PublicKey, alg, use string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, jose.JSONWebKey{Key: pub, KeyID: kid, Algorithm: alg, Use: use})
}

// FailWith makes the key set endpoint answer with status (200 restores it)
func (s *KeyServer) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetDelay delays every key set response
func (s *KeyServer) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Sign signs claims with the server's RS256 key and kid
func (s *KeyServer) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return SignWith(t, jwt.SigningMethodRS256, s.Key, s.KeyID, claims)
}

// Claims returns claims that pass verification against this server
func (s *KeyServer) Claims(audience, scope string) jwt.MapClaims {
	return ValidClaims(s.Issuer(), audience, scope)
}

// GenerateKey returns a fresh 2048-bit RSA key
func GenerateKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

// SignWith signs claims with an arbitrary method and key. An empty kid omits the header.
func SignWith(t testing.TB, method jwt.SigningMethod, key any, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// ValidClaims returns claims for issuer and audience valid for one hour.
// An empty scope omits the scope claim.
func ValidClaims(issuer, audience, scope string) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": "auth0|user-123",
		"aud": []string{audience, issuer + "userinfo"},
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if scope != "" {
		claims["scope"] = scope
	}
	return claims
}
