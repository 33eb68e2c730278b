package middleware

import (
	"context"

	"github.com/upb/auth0-api/auth"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ResultKey is the context key for the verified token
	ResultKey contextKey = "auth_result"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetResultFromContext retrieves the verified token from context
func GetResultFromContext(ctx context.Context) *auth.Result {
	if val := ctx.Value(ResultKey); val != nil {
		if result, ok := val.(*auth.Result); ok {
			return result
		}
	}
	return nil
}

// WithResult adds a verified token to the context
func WithResult(ctx context.Context, result *auth.Result) context.Context {
	return context.WithValue(ctx, ResultKey, result)
}
