package api

import (
	"net/http"
	"time"

	apimw "github.com/docuflow/docuflow/internal/api/middleware"
	"github.com/docuflow/docuflow/internal/auth"
	"github.com/docuflow/docuflow/internal/auth/apikey"
	"github.com/docuflow/docuflow/internal/auth/ratelimit"
	"github.com/docuflow/docuflow/pkg/health"
	"github.com/docuflow/docuflow/pkg/metrics"
	"github.com/docuflow/docuflow/pkg/middleware"
)

// RouterConfig carries the cross-cutting pieces the router wires around the
// handler. Validator and Limiter may be nil, in which case the auth and
// rate-limit middleware are skipped (simulated single-user deployments and
// tests).
type RouterConfig struct {
	Validator apimw.KeyValidator
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Metrics
	Checker   *health.Checker
	Timeout   time.Duration
}

// NewRouter builds the HTTP routing table:
//
//	GET    /health/live
//	GET    /health/ready
//	POST   /api/v1/ingestion/trigger
//	GET    /api/v1/ingestion/status/{jobID}
//	GET    /api/v1/ingestion/jobs
//	GET    /api/v1/ingestion/jobs/all
//	POST   /api/v1/ingestion/jobs/{jobID}/retry
//	DELETE /api/v1/ingestion/jobs/{jobID}
//	POST   /api/v1/ingestion/webhook/status-update
//	GET    /api/v1/documents
//	GET    /api/v1/documents/{id}
//	POST   /api/v1/admin/keys
//	GET    /api/v1/admin/keys
//	DELETE /api/v1/admin/keys
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", cfg.Checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", cfg.Checker.ReadyHandler())

	mux.HandleFunc("POST /api/v1/ingestion/trigger", h.TriggerIngestion)
	mux.HandleFunc("GET /api/v1/ingestion/status/{jobID}", h.GetStatus)
	mux.HandleFunc("GET /api/v1/ingestion/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/v1/ingestion/jobs/all", h.ListAllJobs)
	mux.HandleFunc("POST /api/v1/ingestion/jobs/{jobID}/retry", h.RetryJob)
	mux.HandleFunc("DELETE /api/v1/ingestion/jobs/{jobID}", h.CancelJob)
	mux.HandleFunc("POST /api/v1/ingestion/webhook/status-update", h.Webhook)

	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)

	if h.keys != nil {
		mux.HandleFunc("POST /api/v1/admin/keys", h.CreateAPIKey)
		mux.HandleFunc("GET /api/v1/admin/keys", h.ListAPIKeys)
		mux.HandleFunc("DELETE /api/v1/admin/keys", h.RevokeAPIKey)
	}

	// Innermost runs last. Order: request ID, CORS, auth, rate limit,
	// metrics, timeout, handler.
	var handler http.Handler = mux
	if cfg.Timeout > 0 {
		handler = middleware.Timeout(cfg.Timeout)(handler)
	}
	if cfg.Metrics != nil {
		handler = middleware.Metrics(cfg.Metrics)(handler)
	}
	if cfg.Limiter != nil {
		handler = apimw.RateLimit(cfg.Limiter)(handler)
	}
	if cfg.Validator != nil {
		handler = apimw.Auth(cfg.Validator)(handler)
	} else {
		handler = apimw.StaticIdentity(&apikey.KeyInfo{
			ID:     "dev",
			UserID: "dev-user",
			Role:   auth.RoleAdmin,
			Name:   "development",
		})(handler)
	}
	handler = apimw.CORS(apimw.DefaultCORSConfig())(handler)
	handler = middleware.RequestID(handler)

	return handler
}
