package utils

import (
	"encoding/json"
	"net/http"

	"github.com/upb/auth0-api/auth"
	"go.uber.org/zap"
)

// MessageResponse is the body of every response this API writes
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteMessage writes {"message": message} with status
func WriteMessage(w http.ResponseWriter, status int, message string) error {
	return WriteJSON(w, status, MessageResponse{Message: message})
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Authentication required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	return WriteMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a 403 Forbidden response
func WriteForbidden(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Access forbidden"
	}
	return WriteMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Not Found"
	}
	return WriteMessage(w, http.StatusNotFound, message)
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteMessage(w, http.StatusInternalServerError, message)
}

// StatusForError maps a gate failure to its HTTP status
func StatusForError(err error) int {
	switch auth.KindOf(err) {
	case auth.KindMissingToken,
		auth.KindMalformedToken,
		auth.KindKeyResolution,
		auth.KindInvalidSignature,
		auth.KindClaimMismatch:
		return http.StatusUnauthorized
	case auth.KindInsufficientScope:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteAuthError writes the response for a failed authentication or
// authorization gate. The underlying cause is logged, never returned.
func WriteAuthError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status := StatusForError(err)
	message, ok := auth.PublicMessage(err)

	var writeErr error
	switch {
	case !ok || status == http.StatusInternalServerError:
		logger.Error("unhandled gate error", zap.Error(err))
		writeErr = WriteInternalServerError(w, "")
	case status == http.StatusUnauthorized:
		if auth.KindOf(err) == auth.KindKeyResolution {
			// Provider outages surface as 401; keep the cause visible to operators
			logger.Warn("signing key resolution failed",
				zap.String("kind", string(auth.KindOf(err))),
				zap.Error(err))
		} else {
			logger.Info("authentication failed",
				zap.String("kind", string(auth.KindOf(err))),
				zap.Error(err))
		}
		writeErr = WriteUnauthorized(w, message)
	default:
		logger.Info("authorization failed",
			zap.String("kind", string(auth.KindOf(err))),
			zap.Error(err))
		writeErr = WriteForbidden(w, message)
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
