package jwks

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverJWKSURL reads the issuer's OpenID configuration document and
// returns its jwks_uri. The document's issuer must match issuer exactly.
func DiscoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("oidc discovery failed: %w", err)
	}

	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JWKSURL == "" {
		return "", errors.New("discovery incomplete: missing jwks_uri")
	}
	return meta.JWKSURL, nil
}
