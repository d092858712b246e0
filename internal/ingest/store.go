package ingest

import (
	"context"
	"time"
)

// JobStore is the persistence surface for ingestion jobs. Implementations
// must keep listing order (created_at descending) and counts consistent for
// the same filters.
type JobStore interface {
	Create(ctx context.Context, job *Job) error

	// Get returns the job or an ErrJobNotFound application error.
	Get(ctx context.Context, id string) (*Job, error)

	// Update persists all mutable fields of the job and refreshes
	// updated_at.
	Update(ctx context.Context, job *Job) error

	// FindActiveByDocument returns the queued or processing job for the
	// document, or nil when the document has no active job.
	FindActiveByDocument(ctx context.Context, documentID string) (*Job, error)

	// ListByOwner pages through jobs whose owning document belongs to
	// ownerID, newest first. Returns the page and the total match count.
	ListByOwner(ctx context.Context, ownerID string, page, limit int) ([]Job, int, error)

	// List pages through all jobs, newest first, optionally filtered by
	// status ("" means all). Returns the page and the total match count.
	List(ctx context.Context, status Status, page, limit int) ([]Job, int, error)

	// CountActive returns the number of queued or processing jobs.
	CountActive(ctx context.Context) (int, error)

	// DeleteTerminalBefore removes terminal jobs whose updated_at is older
	// than cutoff and reports how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}
