// Package api implements the platform's HTTP surface: the ingestion job
// endpoints, the worker status webhook, the document read path, and admin
// key management.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/docuflow/docuflow/internal/api/middleware"
	"github.com/docuflow/docuflow/internal/auth"
	"github.com/docuflow/docuflow/internal/auth/apikey"
	"github.com/docuflow/docuflow/internal/document"
	"github.com/docuflow/docuflow/internal/ingest"
	apperrors "github.com/docuflow/docuflow/pkg/errors"
	"github.com/docuflow/docuflow/pkg/logger"
)

// Handler implements the platform's HTTP endpoints.
type Handler struct {
	svc           *ingest.Service
	docs          document.Store
	keys          *apikey.Validator
	webhookSecret string
	simulatedMode bool
	logger        *slog.Logger
}

// Config selects the webhook trust model.
type Config struct {
	// WebhookSecret is the shared secret remote workers present on status
	// updates. Ignored in simulated mode.
	WebhookSecret string
	// SimulatedMode disables the webhook secret check: the only caller is
	// the in-process simulation.
	SimulatedMode bool
}

// New creates the Handler. keys may be nil when key management endpoints
// are not mounted (tests).
func New(cfg Config, svc *ingest.Service, docs document.Store, keys *apikey.Validator) *Handler {
	return &Handler{
		svc:           svc,
		docs:          docs,
		keys:          keys,
		webhookSecret: cfg.WebhookSecret,
		simulatedMode: cfg.SimulatedMode,
		logger:        slog.Default().With("component", "api-handler"),
	}
}

// ---------- Ingestion ----------

// TriggerIngestion starts an ingestion job for a document.
// POST /api/v1/ingestion/trigger {document_id}
func (h *Handler) TriggerIngestion(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DocumentID == "" {
		h.writeError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	job, err := h.svc.TriggerIngestion(r.Context(), identity.UserID, req.DocumentID)
	if err != nil {
		h.writeDomainError(w, r, err, "trigger ingestion")
		return
	}
	h.writeJSON(w, http.StatusCreated, job)
}

// GetStatus returns one job's current view.
// GET /api/v1/ingestion/status/{jobID}
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	jobID := r.PathValue("jobID")

	job, err := h.svc.GetStatus(r.Context(), jobID, identity.UserID, identity.Role)
	if err != nil {
		h.writeDomainError(w, r, err, "get job status")
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ListJobs returns the caller's jobs, newest first.
// GET /api/v1/ingestion/jobs?page&limit
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	page, limit := parsePaging(r)

	result, err := h.svc.ListUserJobs(r.Context(), identity.UserID, page, limit)
	if err != nil {
		h.writeDomainError(w, r, err, "list jobs")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListAllJobs returns every job, optionally filtered by status. Admin only.
// GET /api/v1/ingestion/jobs/all?page&limit&status
func (h *Handler) ListAllJobs(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	page, limit := parsePaging(r)
	status := ingest.Status(r.URL.Query().Get("status"))

	result, err := h.svc.ListAllJobs(r.Context(), identity.Role, status, page, limit)
	if err != nil {
		h.writeDomainError(w, r, err, "list all jobs")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// RetryJob re-queues a failed job.
// POST /api/v1/ingestion/jobs/{jobID}/retry
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	jobID := r.PathValue("jobID")

	job, err := h.svc.Retry(r.Context(), jobID, identity.UserID, identity.Role)
	if err != nil {
		h.writeDomainError(w, r, err, "retry job")
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// CancelJob cancels an active job. Admin only.
// DELETE /api/v1/ingestion/jobs/{jobID}
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	jobID := r.PathValue("jobID")

	job, err := h.svc.Cancel(r.Context(), jobID, identity.Role)
	if err != nil {
		h.writeDomainError(w, r, err, "cancel job")
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ---------- Webhook ----------

// webhookRequest is the payload external workers POST back to the platform.
type webhookRequest struct {
	JobID        string           `json:"job_id"`
	Status       ingest.Status    `json:"status"`
	Progress     *ingest.Progress `json:"progress,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	APIKey       string           `json:"api_key"`
}

// Webhook ingests a status update pushed by an external worker. This is the
// sole mutation path reachable by a worker process. In remote mode the
// request must carry the shared secret; internal failures are reported
// generically.
// POST /api/v1/ingestion/webhook/status-update
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.JobID == "" || req.Status == "" {
		h.writeError(w, http.StatusBadRequest, "job_id and status are required")
		return
	}
	if !h.simulatedMode {
		if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.webhookSecret)) != 1 {
			h.writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
	}

	job, err := h.svc.UpdateJobStatus(r.Context(), req.JobID, req.Status, req.Progress, req.ErrorMessage)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status == http.StatusBadRequest {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.FromContext(r.Context()).Error("webhook status update failed",
			"job_id", req.JobID,
			"status", req.Status,
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, "status update failed")
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ---------- Documents ----------

// GetDocument returns a document's metadata. Viewers must own it.
// GET /api/v1/documents/{id}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id := r.PathValue("id")

	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err, "get document")
		return
	}
	if !identity.Role.BypassesOwnership() && doc.OwnerID != identity.UserID {
		h.writeError(w, http.StatusForbidden, "access denied")
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// ListDocuments returns the caller's documents, newest first.
// GET /api/v1/documents?page&limit
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	page, limit := parsePaging(r)

	docs, total, err := h.docs.List(r.Context(), identity.UserID, page, limit)
	if err != nil {
		h.writeDomainError(w, r, err, "list documents")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents":  docs,
		"pagination": ingest.NewPagination(page, limit, total),
	})
}

// ---------- Admin ----------

// CreateAPIKey mints a new API key bound to a user and role. Admin only.
// POST /api/v1/admin/keys {user_id, role, name, rate_limit, expires_in_days?}
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil || identity.Role != auth.RoleAdmin {
		h.writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	var req struct {
		UserID        string    `json:"user_id"`
		Role          auth.Role `json:"role"`
		Name          string    `json:"name"`
		RateLimit     int       `json:"rate_limit"`
		ExpiresInDays int       `json:"expires_in_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "user_id and name are required")
		return
	}
	if !req.Role.Valid() {
		h.writeError(w, http.StatusBadRequest, "role must be admin, editor, or viewer")
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 60
	}
	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	rawKey, err := h.keys.CreateKey(r.Context(), req.UserID, req.Role, req.Name, req.RateLimit, expiresAt)
	if err != nil {
		h.writeDomainError(w, r, err, "create api key")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"api_key":    rawKey,
		"user_id":    req.UserID,
		"role":       req.Role,
		"name":       req.Name,
		"rate_limit": req.RateLimit,
	})
}

// RevokeAPIKey deactivates an API key. Admin only.
// DELETE /api/v1/admin/keys {api_key}
func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil || identity.Role != auth.RoleAdmin {
		h.writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		h.writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	if err := h.keys.RevokeKey(r.Context(), req.APIKey); err != nil {
		h.writeDomainError(w, r, err, "revoke api key")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ListAPIKeys lists all active keys without their secrets. Admin only.
// GET /api/v1/admin/keys
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetKeyInfo(r.Context())
	if identity == nil || identity.Role != auth.RoleAdmin {
		h.writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, "list api keys")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// ---------- Helpers ----------

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= 500 {
		log.Error(op+" failed", "error", err)
		h.writeError(w, status, err.Error())
		return
	}
	log.Warn(op+" rejected", "status", status, "error", err)
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

func parsePaging(r *http.Request) (page, limit int) {
	page, limit = 1, 10
	if v := r.URL.Query().Get("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return page, limit
}
