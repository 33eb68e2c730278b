package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/auth0-api/jwks"
)

// DefaultAlgorithm is the only signing algorithm Auth0 uses for API access tokens
const DefaultAlgorithm = "RS256"

// KeyResolver returns the public key for a key ID
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (jwks.SigningKey, error)
}

// Config holds configuration for Verifier
type Config struct {
	Issuer   string
	Audience string

	// Algorithm is the single accepted signing algorithm (default RS256)
	Algorithm string

	// Leeway tolerates clock skew on exp and nbf
	Leeway time.Duration
}

// Verifier validates bearer tokens issued by the identity provider
type Verifier struct {
	issuer   string
	audience string
	alg      string
	leeway   time.Duration
	resolver KeyResolver
	now      func() time.Time

	unverified *jwt.Parser
	verified   *jwt.Parser
}

// NewVerifier creates a Verifier that resolves signing keys through resolver
func NewVerifier(cfg Config, resolver KeyResolver) (*Verifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	if resolver == nil {
		return nil, errors.New("key resolver is required")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	if jwt.GetSigningMethod(cfg.Algorithm) == nil {
		return nil, fmt.Errorf("unsupported algorithm %q", cfg.Algorithm)
	}

	return &Verifier{
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		alg:        cfg.Algorithm,
		leeway:     cfg.Leeway,
		resolver:   resolver,
		now:        time.Now,
		unverified: jwt.NewParser(),
		// Claims are checked below so each failure maps to its own error.
		verified: jwt.NewParser(
			jwt.WithValidMethods([]string{cfg.Algorithm}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issuer returns the expected issuer
func (v *Verifier) Issuer() string { return v.issuer }

// Audience returns the expected audience
func (v *Verifier) Audience() string { return v.audience }

// Verify validates raw and returns its claims. Checks run in order: structure,
// kid, algorithm, signing key, signature, audience, issuer, expiry.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}

	header, _, err := v.unverified.ParseUnverified(raw, &Claims{})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenUnverifiable) {
			// Structurally fine but names an algorithm we do not know
			return nil, ErrInvalidAlgorithm.wrap(err)
		}
		return nil, ErrMalformedToken.wrap(err)
	}

	kid, _ := header.Header["kid"].(string)
	if kid == "" {
		return nil, ErrMalformedToken.wrap(errors.New("kid header not found"))
	}

	if alg := header.Method.Alg(); alg != v.alg {
		return nil, ErrInvalidAlgorithm.wrap(fmt.Errorf("unexpected signing method: %s", alg))
	}

	var resolveErr error
	token, err := v.verified.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		key, err := v.resolver.Resolve(ctx, kid)
		if err != nil {
			resolveErr = err
			return nil, err
		}
		if key.Algorithm != "" && key.Algorithm != v.alg {
			return nil, fmt.Errorf("key %s is published for %s", kid, key.Algorithm)
		}
		return key.Key, nil
	})
	if resolveErr != nil {
		return nil, ErrKeyResolution.wrap(resolveErr)
	}
	if err != nil {
		return nil, ErrInvalidSignature.wrap(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSignature
	}

	if err := v.checkClaims(claims); err != nil {
		return nil, err
	}

	return newResult(claims, kid), nil
}

func (v *Verifier) checkClaims(claims *Claims) error {
	if !containsAudience(claims.Audience, v.audience) {
		return ErrAudienceMismatch.wrap(fmt.Errorf("expected %s, got %v", v.audience, []string(claims.Audience)))
	}

	if claims.Issuer != v.issuer {
		return ErrIssuerMismatch.wrap(fmt.Errorf("expected %s, got %s", v.issuer, claims.Issuer))
	}

	now := v.now()
	if claims.ExpiresAt == nil {
		return ErrExpirationRequired
	}
	if !now.Before(claims.ExpiresAt.Add(v.leeway)) {
		return ErrTokenExpired.wrap(fmt.Errorf("expired at %s", claims.ExpiresAt.Time.Format(time.RFC3339)))
	}
	if claims.NotBefore != nil && now.Add(v.leeway).Before(claims.NotBefore.Time) {
		return ErrTokenNotYetValid.wrap(fmt.Errorf("not before %s", claims.NotBefore.Time.Format(time.RFC3339)))
	}

	return nil
}

// containsAudience checks if the audience list contains the expected audience
func containsAudience(audiences jwt.ClaimStrings, expected string) bool {
	for _, aud := range audiences {
		if aud == expected {
			return true
		}
	}
	return false
}
