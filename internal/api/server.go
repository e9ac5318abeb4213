package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/review-background/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes.
// A nil rateLimiter disables rate limiting on the read API.
func (h *Handler) SetupRoutes(bridge http.HandlerFunc, rateLimiter *ratelimit.Limiter, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	// Bridge endpoint (not rate limited - long-lived socket)
	api.HandleFunc("/bridge", bridge).Methods("GET")

	readAPI := api.PathPrefix("").Subrouter()
	if rateLimiter != nil {
		readAPI.Use(RateLimitMiddleware(rateLimiter))
	}
	readAPI.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	readAPI.HandleFunc("/sessions/{tabId:[0-9]+}", h.GetSession).Methods("GET")
	readAPI.HandleFunc("/donation", h.GetDonation).Methods("GET")

	r.Use(corsMiddleware)
	if logger != nil {
		r.Use(LoggingMiddleware(logger))
	}

	return r
}
