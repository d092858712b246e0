package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/docuflow/docuflow/pkg/config"
	apperrors "github.com/docuflow/docuflow/pkg/errors"
	"github.com/docuflow/docuflow/pkg/resilience"
)

// maxErrorBodyBytes bounds how much of an upstream error body is embedded
// in the dispatch error.
const maxErrorBodyBytes = 512

// RemoteWorker dispatches jobs to an external processing service over HTTP.
// Calls carry a bearer token and are bounded by the configured timeout; a
// circuit breaker sheds load when the service is persistently down. Results
// come back asynchronously through the webhook receiver.
type RemoteWorker struct {
	endpoint string
	token    string
	cfg      config.RemoteConfig
	client   *http.Client
	breaker  *resilience.Breaker
	logger   *slog.Logger
}

// NewRemoteWorker creates a worker adapter for the configured endpoint.
func NewRemoteWorker(cfg config.RemoteConfig) *RemoteWorker {
	return &RemoteWorker{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		breaker:  resilience.NewBreaker("remote-worker", resilience.BreakerConfig{}),
		logger:   slog.Default().With("component", "remote-worker"),
	}
}

// Dispatch POSTs the job to the processing service. Any network failure or
// non-2xx response is surfaced as a worker dispatch error with the upstream
// status and body embedded. The call is never retried here: a failed
// dispatch leaves the job in failed state for an explicit manual retry.
func (w *RemoteWorker) Dispatch(ctx context.Context, req DispatchRequest) error {
	return w.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, w.cfg.Timeout, "remote-worker-dispatch", func(ctx context.Context) error {
			return w.post(ctx, req)
		})
	})
}

func (w *RemoteWorker) post(ctx context.Context, req DispatchRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return apperrors.Newf(apperrors.ErrWorkerDispatch, http.StatusInternalServerError,
			"calling processing service: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		w.logger.Error("processing service rejected dispatch",
			"job_id", req.JobID,
			"status", resp.StatusCode,
		)
		return apperrors.Newf(apperrors.ErrWorkerDispatch, http.StatusInternalServerError,
			"processing service returned %d: %s", resp.StatusCode, string(snippet))
	}

	w.logger.Info("job dispatched to processing service",
		"job_id", req.JobID,
		"document_id", req.DocumentID,
	)
	return nil
}

// Cancel is a no-op: a dispatch already accepted by the remote service
// cannot be aborted mid-flight. Cancellation is a status overwrite applied
// by the controller.
func (w *RemoteWorker) Cancel(jobID string) {}
