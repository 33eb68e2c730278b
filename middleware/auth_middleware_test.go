package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/auth0-api/auth"
	"go.uber.org/zap"
)

// MockTokenVerifier is a mock implementation of TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, token string) (*auth.Result, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Result), args.Error(1)
}

func okHandler(t *testing.T, check func(r *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func failHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["message"]
}

func TestRequireAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid token allows request", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		m := NewAuthMiddleware(mockVerifier, logger)

		result := &auth.Result{Subject: "auth0|user-123", Scopes: []string{"read:messages"}}
		mockVerifier.On("Verify", mock.Anything, "valid-token").Return(result, nil)

		handler := m.Chain(m.RequireAuth())(okHandler(t, func(r *http.Request) {
			got := GetResultFromContext(r.Context())
			require.NotNil(t, got)
			assert.Equal(t, "auth0|user-123", got.Subject)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		req.Header.Set("Authorization", "Bearer valid-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		mockVerifier.AssertExpectations(t)
	})

	t.Run("scheme is case insensitive", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		m := NewAuthMiddleware(mockVerifier, logger)
		mockVerifier.On("Verify", mock.Anything, "abc").Return(&auth.Result{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		req.Header.Set("Authorization", "bearer abc")
		w := httptest.NewRecorder()

		m.Chain(m.RequireAuth())(okHandler(t, nil)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing header returns 401", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		m := NewAuthMiddleware(mockVerifier, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		w := httptest.NewRecorder()

		m.Chain(m.RequireAuth())(failHandler(t)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "No authorization token was found", messageOf(t, w))
		mockVerifier.AssertNotCalled(t, "Verify")
	})

	t.Run("bad header format returns 401", func(t *testing.T) {
		for _, header := range []string{"Basic dXNlcjpwYXNz", "Bearer", "Bearer   ", "token-only"} {
			t.Run(header, func(t *testing.T) {
				mockVerifier := new(MockTokenVerifier)
				m := NewAuthMiddleware(mockVerifier, logger)

				req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
				req.Header.Set("Authorization", header)
				w := httptest.NewRecorder()

				m.Chain(m.RequireAuth())(failHandler(t)).ServeHTTP(w, req)

				assert.Equal(t, http.StatusUnauthorized, w.Code)
				assert.Equal(t, "Format is Authorization: Bearer [token]", messageOf(t, w))
				mockVerifier.AssertNotCalled(t, "Verify")
			})
		}
	})

	t.Run("verification failure returns its message", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		m := NewAuthMiddleware(mockVerifier, logger)
		mockVerifier.On("Verify", mock.Anything, "expired").Return(nil, auth.ErrTokenExpired)

		req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		req.Header.Set("Authorization", "Bearer expired")
		w := httptest.NewRecorder()

		m.Chain(m.RequireAuth())(failHandler(t)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "jwt expired", messageOf(t, w))
		mockVerifier.AssertExpectations(t)
	})

	t.Run("key resolution cause is not leaked", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		m := NewAuthMiddleware(mockVerifier, logger)
		mockVerifier.On("Verify", mock.Anything, "tok").
			Return(nil, fmt.Errorf("verify: %w", &auth.Error{
				Kind:    auth.KindKeyResolution,
				Message: auth.ErrKeyResolution.Message,
				Err:     fmt.Errorf("dial tcp: connection refused"),
			}))

		req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()

		m.Chain(m.RequireAuth())(failHandler(t)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})

	t.Run("unknown verifier error returns 500", func(t *testing.T) {
		mockVerifier := new(MockTokenVerifier)
		m := NewAuthMiddleware(mockVerifier, logger)
		mockVerifier.On("Verify", mock.Anything, "tok").Return(nil, assert.AnError)

		req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()

		m.Chain(m.RequireAuth())(failHandler(t)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Internal server error", messageOf(t, w))
	})
}

func TestRequireScopes(t *testing.T) {
	logger := zap.NewNop()

	serve := func(t *testing.T, result *auth.Result, next http.Handler) *httptest.ResponseRecorder {
		mockVerifier := new(MockTokenVerifier)
		mockVerifier.On("Verify", mock.Anything, "tok").Return(result, nil)
		m := NewAuthMiddleware(mockVerifier, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/private-scoped", nil)
		req.Header.Set("Authorization", "Bearer tok")
		w := httptest.NewRecorder()

		m.Chain(m.RequireAuth(), RequireScopes("read:messages"))(next).ServeHTTP(w, req)
		return w
	}

	t.Run("granted scope among others passes", func(t *testing.T) {
		w := serve(t, &auth.Result{Scopes: []string{"openid", "read:messages"}}, okHandler(t, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing scope returns 403", func(t *testing.T) {
		w := serve(t, &auth.Result{Scopes: []string{"write:messages"}}, failHandler(t))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "Insufficient scope", messageOf(t, w))
	})

	t.Run("without a verified token returns 401", func(t *testing.T) {
		m := NewAuthMiddleware(new(MockTokenVerifier), logger)
		req := httptest.NewRequest(http.MethodGet, "/api/private-scoped", nil)
		w := httptest.NewRecorder()

		m.Chain(RequireScopes("read:messages"))(failHandler(t)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestChain(t *testing.T) {
	m := NewAuthMiddleware(new(MockTokenVerifier), zap.NewNop())

	t.Run("no gates passes through", func(t *testing.T) {
		w := httptest.NewRecorder()
		m.Chain()(okHandler(t, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("gates run in order and stop at first failure", func(t *testing.T) {
		var order []string
		first := func(r *http.Request) (*http.Request, error) {
			order = append(order, "first")
			return r, auth.ErrMissingToken
		}
		second := func(r *http.Request) (*http.Request, error) {
			order = append(order, "second")
			return r, nil
		}

		w := httptest.NewRecorder()
		m.Chain(first, second)(failHandler(t)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, []string{"first"}, order)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("context from earlier gates reaches later ones", func(t *testing.T) {
		setter := func(r *http.Request) (*http.Request, error) {
			return r.WithContext(WithResult(r.Context(), &auth.Result{Subject: "s"})), nil
		}
		reader := func(r *http.Request) (*http.Request, error) {
			require.NotNil(t, GetResultFromContext(r.Context()))
			return r, nil
		}

		w := httptest.NewRecorder()
		m.Chain(setter, reader)(okHandler(t, nil)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
