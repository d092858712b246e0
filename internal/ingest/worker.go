package ingest

import "context"

// DispatchRequest carries everything a worker needs to process a document.
type DispatchRequest struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	FilePath   string `json:"file_path"`
	FileType   string `json:"file_type"`
	RetryCount int    `json:"retry_count"`
}

// Worker hands documents to a processing backend. The controller depends
// only on this interface; the concrete implementation (remote HTTP service
// or local simulation) is selected once at startup.
type Worker interface {
	// Dispatch submits the job for processing. A non-nil error means the
	// job never reached the worker; results of accepted jobs arrive later
	// through status updates.
	Dispatch(ctx context.Context, req DispatchRequest) error

	// Cancel stops any pending local processing for the job. It cannot
	// abort an already-submitted remote dispatch; for the remote worker it
	// is a no-op.
	Cancel(jobID string)
}

// StatusSink receives worker status updates. The lifecycle controller
// implements it; the simulated worker calls it directly in place of the
// HTTP webhook a remote worker would use.
type StatusSink interface {
	UpdateJobStatus(ctx context.Context, jobID string, status Status, progress *Progress, errorMessage string) (*Job, error)
}
