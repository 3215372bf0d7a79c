package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// Headers the browser client reads back: request tracing, idempotent replay
// marking and throttling feedback.
var exposedHeaders = []string{
	requestIDHeader,
	replayedHeader,
	"Retry-After",
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
}

// CORS allows the configured storefront and dashboard origins.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
