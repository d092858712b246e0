package ingest

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/docuflow/docuflow/pkg/config"
)

// SimulatedWorker processes jobs with timer-driven state progression instead
// of network calls. After a randomized initial delay it walks the configured
// step sequence, reporting progress through the StatusSink, then draws the
// final outcome from the configured failure rate.
//
// Each job owns at most one pending timer. Dispatching or cancelling a job
// atomically replaces or stops the previous timer, so a retried job can
// never be mutated by a stale callback from its earlier run.
type SimulatedWorker struct {
	cfg    config.SimulatedConfig
	store  JobStore
	logger *slog.Logger

	mu      sync.Mutex
	sink    StatusSink
	pending map[string]*time.Timer
	// gen maps in-flight jobs to their live generation. Generations are
	// globally unique, so an entry can be dropped as soon as the run ends
	// without a stale callback ever matching a later one.
	gen     map[string]uint64
	nextGen uint64
}

// NewSimulatedWorker creates a simulated worker. The store is used only by
// auto-cleanup; status updates flow through the sink bound with Bind.
func NewSimulatedWorker(cfg config.SimulatedConfig, store JobStore) *SimulatedWorker {
	return &SimulatedWorker{
		cfg:     cfg,
		store:   store,
		logger:  slog.Default().With("component", "simulated-worker"),
		pending: make(map[string]*time.Timer),
		gen:     make(map[string]uint64),
	}
}

// Bind attaches the status sink. Must be called before the first Dispatch;
// it is separate from the constructor because the controller and the worker
// reference each other.
func (w *SimulatedWorker) Bind(sink StatusSink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink = sink
}

// Dispatch schedules the simulated progression for the job. A previous
// pending progression for the same job is replaced.
func (w *SimulatedWorker) Dispatch(ctx context.Context, req DispatchRequest) error {
	delay := w.initialDelay()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextGen++
	gen := w.nextGen
	w.gen[req.JobID] = gen
	w.scheduleLocked(req.JobID, gen, delay, func() {
		w.runStep(req.JobID, gen, 0)
	})

	w.logger.Info("job scheduled for simulated processing",
		"job_id", req.JobID,
		"document_id", req.DocumentID,
		"initial_delay", delay,
		"retry_count", req.RetryCount,
	)
	return nil
}

// Cancel stops the pending timer for the job and invalidates any callback
// already in flight.
func (w *SimulatedWorker) Cancel(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.gen, jobID)
	if timer, ok := w.pending[jobID]; ok {
		timer.Stop()
		delete(w.pending, jobID)
	}
}

// StartCleanup runs the periodic deletion of aged terminal jobs until ctx is
// cancelled. It is a no-op when auto-cleanup is disabled.
func (w *SimulatedWorker) StartCleanup(ctx context.Context) {
	if !w.cfg.AutoCleanup.Enabled {
		return
	}
	go func() {
		ticker := time.NewTicker(w.cfg.AutoCleanup.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-w.cfg.AutoCleanup.MaxAge)
				deleted, err := w.store.DeleteTerminalBefore(ctx, cutoff)
				if err != nil {
					w.logger.Error("job cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					w.logger.Info("cleaned up terminal jobs", "deleted", deleted, "max_age", w.cfg.AutoCleanup.MaxAge)
				}
			}
		}
	}()
}

// runStep reports the step at index i and schedules the next one. After the
// last step it draws the outcome.
func (w *SimulatedWorker) runStep(jobID string, gen uint64, i int) {
	if !w.current(jobID, gen) {
		return
	}
	if i >= len(w.cfg.Steps) {
		w.finish(jobID, gen)
		return
	}

	step := w.cfg.Steps[i]
	w.report(jobID, StatusProcessing, &Progress{Step: step.Name, Percentage: step.Percentage}, "")

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen[jobID] != gen {
		return
	}
	w.scheduleLocked(jobID, gen, step.Duration, func() {
		w.runStep(jobID, gen, i+1)
	})
}

// finish applies the terminal outcome drawn from the failure rate and
// retires the job's generation entry, since no further timer can fire.
func (w *SimulatedWorker) finish(jobID string, gen uint64) {
	if !w.current(jobID, gen) {
		return
	}
	if rand.Float64() < w.cfg.FailureRate {
		w.report(jobID, StatusFailed, nil, "document processing failed")
		w.logger.Info("simulated job failed", "job_id", jobID)
	} else {
		w.report(jobID, StatusCompleted, &Progress{Step: "completed", Percentage: 100}, "")
		w.logger.Info("simulated job completed", "job_id", jobID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen[jobID] == gen {
		delete(w.gen, jobID)
	}
}

func (w *SimulatedWorker) report(jobID string, status Status, progress *Progress, errorMessage string) {
	w.mu.Lock()
	sink := w.sink
	w.mu.Unlock()
	if sink == nil {
		return
	}
	if _, err := sink.UpdateJobStatus(context.Background(), jobID, status, progress, errorMessage); err != nil {
		w.logger.Error("status update failed", "job_id", jobID, "status", status, "error", err)
	}
}

// scheduleLocked replaces the job's pending timer. Caller holds w.mu.
func (w *SimulatedWorker) scheduleLocked(jobID string, gen uint64, delay time.Duration, fn func()) {
	if timer, ok := w.pending[jobID]; ok {
		timer.Stop()
	}
	w.pending[jobID] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.pending, jobID)
		w.mu.Unlock()
		fn()
	})
}

// current reports whether gen is still the job's live progression.
func (w *SimulatedWorker) current(jobID string, gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen[jobID] == gen
}

func (w *SimulatedWorker) initialDelay() time.Duration {
	min := w.cfg.ProcessingTimeMin
	max := w.cfg.ProcessingTimeMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
