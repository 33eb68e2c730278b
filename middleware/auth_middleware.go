package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/upb/auth0-api/auth"
	"github.com/upb/auth0-api/utils"
	"go.uber.org/zap"
)

// TokenVerifier defines the interface for verifying bearer tokens
type TokenVerifier interface {
	// Verify checks a raw JWT and returns its verified claims
	Verify(ctx context.Context, token string) (*auth.Result, error)
}

// Gate inspects a request and either lets it through, possibly with an
// enriched context, or rejects it with an auth error.
type Gate func(r *http.Request) (*http.Request, error)

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// Chain runs gates in order before the wrapped handler. The first failing
// gate ends the request with the matching error response.
func (m *AuthMiddleware) Chain(gates ...Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(gates) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error
			for _, gate := range gates {
				r, err = gate(r)
				if err != nil {
					logger := m.logger.With(
						zap.String("request_id", GetRequestIDFromContext(r.Context())),
						zap.String("path", r.URL.Path))
					utils.WriteAuthError(w, err, logger)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns a gate that requires a valid bearer token and stores
// the verified result in the request context
func (m *AuthMiddleware) RequireAuth() Gate {
	return func(r *http.Request) (*http.Request, error) {
		token, err := extractBearerToken(r)
		if err != nil {
			return r, err
		}

		result, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			return r, err
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.String("sub", result.Subject),
			zap.String("kid", result.KeyID))

		return r.WithContext(WithResult(r.Context(), result)), nil
	}
}

// RequireScopes returns a gate that requires every listed scope.
// It must run after RequireAuth.
func RequireScopes(scopes ...string) Gate {
	required := append([]string(nil), scopes...)
	return func(r *http.Request) (*http.Request, error) {
		if err := auth.Authorize(GetResultFromContext(r.Context()), required...); err != nil {
			return r, err
		}
		return r, nil
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", auth.ErrMissingToken
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", auth.ErrBadAuthorizationFormat
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", auth.ErrBadAuthorizationFormat
	}
	return token, nil
}
