package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/pkg/logger"
)

// RequestID assigns each request a unique id (or reuses an incoming
// X-Request-ID), stores it in the request context for log enrichment, and
// echoes it back in the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
