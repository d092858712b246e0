package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/docuflow/docuflow/internal/auth"
	"github.com/docuflow/docuflow/internal/document"
	apperrors "github.com/docuflow/docuflow/pkg/errors"
	"github.com/docuflow/docuflow/pkg/logger"
	"github.com/docuflow/docuflow/pkg/metrics"
	"github.com/docuflow/docuflow/pkg/tracing"
)

// ServiceConfig carries the controller's own knobs.
type ServiceConfig struct {
	// MaxRetries caps manual retries per job. Zero or negative means
	// unlimited.
	MaxRetries int
}

// Service is the job lifecycle controller. It owns every transition in the
// job state machine, enforces the one-active-job-per-document invariant,
// and mirrors coarse job status onto the owning document.
type Service struct {
	cfg     ServiceConfig
	jobs    JobStore
	docs    document.Store
	worker  Worker
	cache   *StatusCache
	metrics *metrics.Metrics
	locks   *lockMap
	logger  *slog.Logger
}

// NewService creates the controller. cache and m may be nil.
func NewService(cfg ServiceConfig, jobs JobStore, docs document.Store, worker Worker, cache *StatusCache, m *metrics.Metrics) *Service {
	return &Service{
		cfg:     cfg,
		jobs:    jobs,
		docs:    docs,
		worker:  worker,
		cache:   cache,
		metrics: m,
		locks:   newLockMap(),
		logger:  slog.Default().With("component", "ingestion-service"),
	}
}

// TriggerIngestion creates a job for the document and dispatches it to the
// worker. It fails with a conflict when the document already has a queued or
// processing job. A dispatch failure leaves the job inspectable in failed
// state and is surfaced to the caller.
func (s *Service) TriggerIngestion(ctx context.Context, userID, documentID string) (*Job, error) {
	ctx, span := tracing.StartSpan(ctx, "trigger-ingestion", logger.RequestIDFromContext(ctx))
	defer func() {
		span.End()
		span.Log()
	}()
	span.SetAttr("document_id", documentID)

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	// The active-job check and the insert must be one critical section,
	// keyed by document. Without this, two near-simultaneous triggers both
	// pass the check and create duplicate jobs.
	unlock := s.locks.Lock(documentID)
	defer unlock()

	active, err := s.jobs.FindActiveByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperrors.Newf(apperrors.ErrAlreadyProcessing, http.StatusConflict,
			"document %s already has an active ingestion job (%s)", documentID, active.ID)
	}

	job := &Job{
		DocumentID: documentID,
		Status:     StatusQueued,
		RetryCount: 0,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.docs.UpdateStatus(ctx, documentID, document.StatusProcessing); err != nil {
		s.logger.Error("failed to mirror document status", "document_id", documentID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.JobsTriggeredTotal.Inc()
		s.metrics.ActiveJobs.Inc()
	}
	s.logger.Info("ingestion triggered",
		"job_id", job.ID,
		"document_id", documentID,
		"user_id", userID,
	)

	if err := s.dispatch(ctx, job, doc); err != nil {
		return nil, err
	}
	return job, nil
}

// dispatch hands the job to the worker and applies the resulting transition:
// queued → processing on success, queued → failed on dispatch error.
func (s *Service) dispatch(ctx context.Context, job *Job, doc *document.Document) error {
	dispatchCtx, span := tracing.StartChildSpan(ctx, "worker-dispatch")
	err := s.worker.Dispatch(dispatchCtx, DispatchRequest{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		FilePath:   doc.FilePath,
		FileType:   doc.FileType,
		RetryCount: job.RetryCount,
	})
	span.End()

	if err != nil {
		if s.metrics != nil {
			s.metrics.WorkerDispatchTotal.WithLabelValues("error").Inc()
		}
		s.failDispatch(ctx, job, err)
		return apperrors.Newf(apperrors.ErrWorkerDispatch, http.StatusInternalServerError,
			"dispatching job %s: %v", job.ID, err)
	}

	if s.metrics != nil {
		s.metrics.WorkerDispatchTotal.WithLabelValues("ok").Inc()
	}
	now := time.Now().UTC()
	job.Status = StatusProcessing
	job.StartedAt = &now
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, job.ID)
	return nil
}

// failDispatch records a dispatch failure on the job and the document. The
// job stays in failed state for a later manual retry.
func (s *Service) failDispatch(ctx context.Context, job *Job, dispatchErr error) {
	now := time.Now().UTC()
	job.Status = StatusFailed
	job.ErrorMessage = dispatchErr.Error()
	job.CompletedAt = &now
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("failed to record dispatch failure", "job_id", job.ID, "error", err)
	}
	if err := s.docs.UpdateStatus(ctx, job.DocumentID, document.StatusFailed); err != nil {
		s.logger.Error("failed to mirror document status", "document_id", job.DocumentID, "error", err)
	}
	s.cache.Invalidate(ctx, job.ID)
	s.recordTerminal(job, true)
	s.logger.Error("worker dispatch failed",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"error", dispatchErr,
	)
}

// GetStatus returns the job view. Viewers must own the job's document;
// admin and editor bypass the ownership check.
func (s *Service) GetStatus(ctx context.Context, jobID, userID string, role auth.Role) (*Job, error) {
	if cached := s.cache.Get(ctx, jobID); cached != nil {
		if err := s.authorize(ctx, cached, userID, role); err != nil {
			return nil, err
		}
		return cached, nil
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, job, userID, role); err != nil {
		return nil, err
	}
	s.cache.Put(ctx, job)
	return job, nil
}

func (s *Service) authorize(ctx context.Context, job *Job, userID string, role auth.Role) error {
	if role.BypassesOwnership() {
		return nil
	}
	doc, err := s.docs.Get(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	if doc.OwnerID != userID {
		return apperrors.New(apperrors.ErrAccessDenied, http.StatusForbidden,
			"job "+job.ID+" belongs to another user's document")
	}
	return nil
}

// ListUserJobs pages through the caller's own jobs, newest first.
func (s *Service) ListUserJobs(ctx context.Context, userID string, page, limit int) (*JobPage, error) {
	page, limit = clampPage(page, limit)
	jobs, total, err := s.jobs.ListByOwner(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}
	return &JobPage{Jobs: jobs, Pagination: NewPagination(page, limit, total)}, nil
}

// ListAllJobs pages through every job, optionally filtered by status.
// Admin only.
func (s *Service) ListAllJobs(ctx context.Context, role auth.Role, status Status, page, limit int) (*JobPage, error) {
	if role != auth.RoleAdmin {
		return nil, apperrors.New(apperrors.ErrAccessDenied, http.StatusForbidden, "admin role required")
	}
	if status != "" && !status.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown status filter %q", status)
	}
	page, limit = clampPage(page, limit)
	jobs, total, err := s.jobs.List(ctx, status, page, limit)
	if err != nil {
		return nil, err
	}
	return &JobPage{Jobs: jobs, Pagination: NewPagination(page, limit, total)}, nil
}

// Retry re-queues a failed job and dispatches it again. Only failed jobs can
// be retried; the retry count only ever grows, and a configured ceiling
// blocks further retries once reached.
func (s *Service) Retry(ctx context.Context, jobID, userID string, role auth.Role) (*Job, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, job, userID, role); err != nil {
		return nil, err
	}
	if job.Status != StatusFailed {
		return nil, apperrors.Newf(apperrors.ErrInvalidJobStatus, http.StatusBadRequest,
			"only failed jobs can be retried, current status: %s", job.Status)
	}
	if s.cfg.MaxRetries > 0 && job.RetryCount >= s.cfg.MaxRetries {
		return nil, apperrors.Newf(apperrors.ErrInvalidJobStatus, http.StatusBadRequest,
			"retry limit reached (%d)", s.cfg.MaxRetries)
	}

	doc, err := s.docs.Get(ctx, job.DocumentID)
	if err != nil {
		return nil, err
	}

	job.Status = StatusQueued
	job.ErrorMessage = ""
	job.RetryCount++
	job.Progress = nil
	job.CompletedAt = nil
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	if err := s.docs.UpdateStatus(ctx, job.DocumentID, document.StatusProcessing); err != nil {
		s.logger.Error("failed to mirror document status", "document_id", job.DocumentID, "error", err)
	}
	s.cache.Invalidate(ctx, job.ID)
	if s.metrics != nil {
		s.metrics.JobsRetriedTotal.Inc()
		s.metrics.ActiveJobs.Inc()
	}
	s.logger.Info("job retry",
		"job_id", job.ID,
		"retry_count", job.RetryCount,
		"user_id", userID,
	)

	if err := s.dispatch(ctx, job, doc); err != nil {
		return nil, err
	}
	return job, nil
}

// Cancel overwrites the job status to cancelled. Admin only; jobs already in
// a terminal status cannot be cancelled. A pending simulated progression is
// stopped; an in-flight remote dispatch cannot be aborted, only overwritten.
func (s *Service) Cancel(ctx context.Context, jobID string, role auth.Role) (*Job, error) {
	if role != auth.RoleAdmin {
		return nil, apperrors.New(apperrors.ErrAccessDenied, http.StatusForbidden, "admin role required")
	}
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, apperrors.Newf(apperrors.ErrInvalidJobStatus, http.StatusBadRequest,
			"job cannot be cancelled, current status: %s", job.Status)
	}

	s.worker.Cancel(jobID)
	return s.UpdateJobStatus(ctx, jobID, StatusCancelled,
		&Progress{Step: "cancelled", Percentage: 0}, "Job cancelled by admin")
}

// UpdateJobStatus applies a worker-reported status directly. The requested
// status overwrites the current one without consulting the transition
// table; the webhook's shared secret is the only guard on this path.
// Completed/failed set completed_at and the document mirror; any other
// status mirrors the document back to processing.
func (s *Service) UpdateJobStatus(ctx context.Context, jobID string, status Status, progress *Progress, errorMessage string) (*Job, error) {
	if !status.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown job status %q", status)
	}
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	wasActive := job.Status.IsActive()
	job.Status = status
	if progress != nil {
		job.Progress = progress
	}
	if errorMessage != "" {
		job.ErrorMessage = errorMessage
	}
	now := time.Now().UTC()
	switch status {
	case StatusQueued:
		job.CompletedAt = nil
	case StatusProcessing:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		job.CompletedAt = nil
	case StatusCompleted, StatusFailed:
		job.CompletedAt = &now
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, err
	}
	if err := s.docs.UpdateStatus(ctx, job.DocumentID, mirrorStatus(status)); err != nil {
		s.logger.Error("failed to mirror document status", "document_id", job.DocumentID, "error", err)
	}
	s.cache.Invalidate(ctx, jobID)
	if s.metrics != nil {
		s.metrics.WebhookUpdatesTotal.WithLabelValues(string(status)).Inc()
	}
	if status.IsTerminal() {
		s.recordTerminal(job, wasActive)
	} else if !wasActive && s.metrics != nil {
		// A terminal job pushed back to queued or processing re-enters the
		// active set, so the gauge decremented on its terminal transition
		// has to come back up.
		s.metrics.ActiveJobs.Inc()
	}

	s.logger.Info("job status updated",
		"job_id", jobID,
		"status", status,
		"progress", fmt.Sprintf("%v", progress),
	)
	return job, nil
}

// recordTerminal updates the terminal-outcome metrics once per job run.
func (s *Service) recordTerminal(job *Job, wasActive bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.JobsFinishedTotal.WithLabelValues(string(job.Status)).Inc()
	if wasActive {
		s.metrics.ActiveJobs.Dec()
	}
	if job.CompletedAt != nil {
		s.metrics.JobDuration.Observe(job.CompletedAt.Sub(job.CreatedAt).Seconds())
	}
}

// mirrorStatus maps a job status onto the owning document's coarse status.
func mirrorStatus(status Status) document.Status {
	switch status {
	case StatusCompleted:
		return document.StatusCompleted
	case StatusFailed:
		return document.StatusFailed
	case StatusCancelled:
		// The document itself is fine, it just isn't being processed.
		return document.StatusUploaded
	default:
		return document.StatusProcessing
	}
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
