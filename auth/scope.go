package auth

// Authorize checks that every required scope was granted to result.
// An empty requirement always passes once a result is present.
func Authorize(result *Result, required ...string) error {
	if result == nil {
		return ErrMissingToken
	}
	if len(required) == 0 {
		return nil
	}

	var missing []string
	for _, want := range required {
		if !result.HasScope(want) {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return ErrInsufficientScope.wrap(&ScopeError{Missing: missing})
	}
	return nil
}
