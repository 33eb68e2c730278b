package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the claims of an Auth0 access token
type Claims struct {
	jwt.RegisteredClaims
	Scope           ScopeClaim `json:"scope,omitempty"`
	AuthorizedParty string     `json:"azp,omitempty"`
}

// ScopeClaim holds granted scopes. It decodes either the space-delimited
// string form or a JSON array of strings.
type ScopeClaim []string

// UnmarshalJSON implements json.Unmarshaler
func (s *ScopeClaim) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = ParseScopes(str)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scope claim must be a string or an array of strings: %w", err)
	}
	out := make(ScopeClaim, 0, len(list))
	for _, v := range list {
		out = append(out, ParseScopes(v)...)
	}
	*s = out
	return nil
}

// MarshalJSON encodes the space-delimited form
func (s ScopeClaim) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(s, " "))
}

// ParseScopes splits a space-delimited scope string
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}

// Result is the outcome of a successful verification
type Result struct {
	Subject         string
	Issuer          string
	Audience        []string
	Scopes          []string
	AuthorizedParty string
	KeyID           string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// HasScope reports whether scope was granted
func (r *Result) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func newResult(claims *Claims, kid string) *Result {
	res := &Result{
		Subject:         claims.Subject,
		Issuer:          claims.Issuer,
		Audience:        append([]string(nil), claims.Audience...),
		Scopes:          append([]string(nil), claims.Scope...),
		AuthorizedParty: claims.AuthorizedParty,
		KeyID:           kid,
	}
	if claims.IssuedAt != nil {
		res.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	return res
}
