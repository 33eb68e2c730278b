package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a request failed authentication or authorization
type Kind string

const (
	KindMissingToken      Kind = "missing_token"
	KindMalformedToken    Kind = "malformed_token"
	KindKeyResolution     Kind = "key_resolution"
	KindInvalidSignature  Kind = "invalid_signature"
	KindClaimMismatch     Kind = "claim_mismatch"
	KindInsufficientScope Kind = "insufficient_scope"
)

// Error is a request-time authentication or authorization failure.
// Message is safe to return to clients; Err carries the internal cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same kind and message
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// wrap returns a copy of e carrying cause
func (e *Error) wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: cause}
}

var (
	// ErrMissingToken is returned when the request carries no bearer token
	ErrMissingToken = &Error{Kind: KindMissingToken, Message: "No authorization token was found"}

	// ErrBadAuthorizationFormat is returned when the Authorization header is not a bearer credential
	ErrBadAuthorizationFormat = &Error{Kind: KindMalformedToken, Message: "Format is Authorization: Bearer [token]"}

	// ErrMalformedToken is returned when the token is not a well-formed JWS
	ErrMalformedToken = &Error{Kind: KindMalformedToken, Message: "jwt malformed"}

	// ErrKeyResolution is returned when the signing key could not be obtained
	ErrKeyResolution = &Error{Kind: KindKeyResolution, Message: "Unable to verify token signing key"}

	// ErrInvalidAlgorithm is returned when the token uses an algorithm outside the allow-list
	ErrInvalidAlgorithm = &Error{Kind: KindInvalidSignature, Message: "invalid algorithm"}

	// ErrInvalidSignature is returned when the signature does not verify
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature, Message: "invalid signature"}

	// ErrAudienceMismatch is returned when the token is not meant for this API
	ErrAudienceMismatch = &Error{Kind: KindClaimMismatch, Message: "jwt audience invalid"}

	// ErrIssuerMismatch is returned when the token was issued by someone else
	ErrIssuerMismatch = &Error{Kind: KindClaimMismatch, Message: "jwt issuer invalid"}

	// ErrExpirationRequired is returned when the token has no exp claim
	ErrExpirationRequired = &Error{Kind: KindClaimMismatch, Message: "jwt expiration required"}

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = &Error{Kind: KindClaimMismatch, Message: "jwt expired"}

	// ErrTokenNotYetValid is returned when nbf is in the future
	ErrTokenNotYetValid = &Error{Kind: KindClaimMismatch, Message: "jwt not active"}

	// ErrInsufficientScope is returned when a required scope was not granted
	ErrInsufficientScope = &Error{Kind: KindInsufficientScope, Message: "Insufficient scope"}
)

// ScopeError names the scopes a token lacked
type ScopeError struct {
	Missing []string
}

// Error implements the error interface
func (e *ScopeError) Error() string {
	return "missing required scope: " + strings.Join(e.Missing, ", ")
}

// KindOf returns the Kind of an *Error in err's chain, or "" if there is none
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

// PublicMessage returns the client-facing message of an *Error in err's chain
func PublicMessage(err error) (string, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Message, true
	}
	return "", false
}
