package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/auth0-api/jwks"
	"github.com/upb/auth0-api/utils"
	"go.uber.org/zap"
)

// KeyStats reports signing key resolver activity
type KeyStats interface {
	Stats() jwks.Stats
}

// pinger is implemented by key caches backed by a remote store
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Keys      *jwks.Stats       `json:"keys,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	keys   KeyStats
	cache  jwks.KeyCache
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(keys KeyStats, cache jwks.KeyCache, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		keys:   keys,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// HandleHealth handles GET /healthz
// Liveness only; returns 200 whenever the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkKeyCache(ctx); err != nil {
		h.logger.Warn("key cache health check failed", zap.Error(err))
		checks["key_cache"] = "unhealthy"
		allHealthy = false
	} else {
		checks["key_cache"] = "healthy"
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if h.keys != nil {
		stats := h.keys.Stats()
		response.Keys = &stats
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// checkKeyCache pings remote key caches; in-process caches are always ready
func (h *HealthHandler) checkKeyCache(ctx context.Context) error {
	p, ok := h.cache.(pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
