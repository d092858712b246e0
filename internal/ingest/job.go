// Package ingest implements the ingestion job subsystem: the job store, the
// worker adapters (remote HTTP and local simulation), and the lifecycle
// controller that ties them together.
package ingest

import "time"

// Status is the lifecycle state of an ingestion job.
//
// Transitions driven by the controller:
//
//	queued --(dispatch ok)--> processing
//	queued --(dispatch err)--> failed
//	processing --(worker success)--> completed
//	processing --(worker failure)--> failed
//	processing --(admin cancel)--> cancelled
//	failed --(manual retry)--> queued
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known job status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a job in this status occupies the
// one-job-per-document slot.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusProcessing
}

// IsTerminal reports whether no further automatic transition is expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Progress is the structured progress payload reported by workers.
type Progress struct {
	Step       string `json:"step"`
	Percentage int    `json:"percentage"`
}

// Job is one ingestion job record. Optional fields are pointers so the JSON
// view omits them entirely when unset.
type Job struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	Status       Status     `json:"status"`
	Progress     *Progress  `json:"progress,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Pagination describes one page of a job listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// JobPage is a page of jobs plus the pagination envelope.
type JobPage struct {
	Jobs       []Job      `json:"jobs"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination computes total_pages = ceil(total/limit).
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}
