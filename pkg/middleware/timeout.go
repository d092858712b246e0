package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Timeout bounds each request with a deadline. Handlers see the deadline
// through the request context; if one overruns without having written
// anything, the client gets a 504 instead of hanging.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			wrapped := &deadlineWriter{ResponseWriter: w}
			finished := make(chan struct{})
			go func() {
				defer close(finished)
				next.ServeHTTP(wrapped, r.WithContext(ctx))
			}()

			select {
			case <-finished:
			case <-ctx.Done():
				if wrapped.wrote {
					return
				}
				slog.Warn("request exceeded deadline",
					"method", r.Method,
					"path", r.URL.Path,
					"limit", limit,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				w.Write([]byte(`{"success":false,"error":"request timeout"}`))
			}
		})
	}
}

// deadlineWriter remembers whether the handler produced output, so the
// timeout path never writes a second response.
type deadlineWriter struct {
	http.ResponseWriter
	wrote bool
}

func (d *deadlineWriter) WriteHeader(code int) {
	d.wrote = true
	d.ResponseWriter.WriteHeader(code)
}

func (d *deadlineWriter) Write(b []byte) (int, error) {
	d.wrote = true
	return d.ResponseWriter.Write(b)
}
