package handlers

import (
	"net/http"

	"github.com/upb/auth0-api/utils"
)

const (
	publicMessage  = "Hello from a public endpoint! You don't need to be authenticated to see this."
	privateMessage = "Hello from a private endpoint! You need to be authenticated to see this."
	scopedMessage  = "Hello from a private endpoint! You need to be authenticated and have a scope of read:messages to see this."
)

// PublicMessage handles GET /api/public
func PublicMessage(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, http.StatusOK, publicMessage)
}

// PrivateMessage handles GET /api/private
func PrivateMessage(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, http.StatusOK, privateMessage)
}

// ScopedMessage handles GET /api/private-scoped
func ScopedMessage(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, http.StatusOK, scopedMessage)
}

// NotFound answers unknown routes
func NotFound(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteNotFound(w, "")
}

// MethodNotAllowed answers known routes hit with the wrong method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}
