package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/internal/document"
	"github.com/docuflow/docuflow/pkg/config"
)

// fastSimConfig returns a simulation tuned for tests: millisecond steps and
// a fixed outcome.
func fastSimConfig(failureRate float64) config.SimulatedConfig {
	return config.SimulatedConfig{
		ProcessingTimeMin: time.Millisecond,
		ProcessingTimeMax: 2 * time.Millisecond,
		FailureRate:       failureRate,
		Steps: []config.StepConfig{
			{Name: "extracting_text", Duration: time.Millisecond, Percentage: 25},
			{Name: "analyzing_content", Duration: time.Millisecond, Percentage: 60},
		},
	}
}

type statusUpdate struct {
	jobID        string
	status       Status
	progress     *Progress
	errorMessage string
}

// recordSink captures every status update the worker reports.
type recordSink struct {
	mu      sync.Mutex
	updates []statusUpdate
}

func (r *recordSink) UpdateJobStatus(ctx context.Context, jobID string, status Status, progress *Progress, errorMessage string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, statusUpdate{jobID, status, progress, errorMessage})
	return nil, nil
}

func (r *recordSink) snapshot() []statusUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]statusUpdate, len(r.updates))
	copy(out, r.updates)
	return out
}

func TestSimulatedWorkerWalksStepsThenCompletes(t *testing.T) {
	sink := &recordSink{}
	worker := NewSimulatedWorker(fastSimConfig(0), NewMemStore(document.NewMemStore()))
	worker.Bind(sink)

	require.NoError(t, worker.Dispatch(context.Background(), DispatchRequest{JobID: "job-1"}))

	require.Eventually(t, func() bool {
		updates := sink.snapshot()
		return len(updates) > 0 && updates[len(updates)-1].status.IsTerminal()
	}, time.Second, 5*time.Millisecond)

	updates := sink.snapshot()
	require.Len(t, updates, 3)
	assert.Equal(t, StatusProcessing, updates[0].status)
	assert.Equal(t, "extracting_text", updates[0].progress.Step)
	assert.Equal(t, 25, updates[0].progress.Percentage)
	assert.Equal(t, "analyzing_content", updates[1].progress.Step)
	assert.Equal(t, StatusCompleted, updates[2].status)
	assert.Equal(t, "completed", updates[2].progress.Step)
	assert.Equal(t, 100, updates[2].progress.Percentage)
}

func TestSimulatedWorkerFailureOutcome(t *testing.T) {
	sink := &recordSink{}
	worker := NewSimulatedWorker(fastSimConfig(1.0), NewMemStore(document.NewMemStore()))
	worker.Bind(sink)

	require.NoError(t, worker.Dispatch(context.Background(), DispatchRequest{JobID: "job-1"}))

	require.Eventually(t, func() bool {
		updates := sink.snapshot()
		return len(updates) > 0 && updates[len(updates)-1].status.IsTerminal()
	}, time.Second, 5*time.Millisecond)

	updates := sink.snapshot()
	last := updates[len(updates)-1]
	assert.Equal(t, StatusFailed, last.status)
	assert.Equal(t, "document processing failed", last.errorMessage)
}

func TestSimulatedWorkerCancelStopsProgression(t *testing.T) {
	cfg := fastSimConfig(0)
	cfg.ProcessingTimeMin = 50 * time.Millisecond
	cfg.ProcessingTimeMax = 60 * time.Millisecond

	sink := &recordSink{}
	worker := NewSimulatedWorker(cfg, NewMemStore(document.NewMemStore()))
	worker.Bind(sink)

	require.NoError(t, worker.Dispatch(context.Background(), DispatchRequest{JobID: "job-1"}))
	worker.Cancel("job-1")

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, sink.snapshot())
}

func TestSimulatedWorkerRedispatchInvalidatesOldRun(t *testing.T) {
	sink := &recordSink{}
	worker := NewSimulatedWorker(fastSimConfig(0), NewMemStore(document.NewMemStore()))
	worker.Bind(sink)

	require.NoError(t, worker.Dispatch(context.Background(), DispatchRequest{JobID: "job-1"}))
	// A retry replaces the pending progression before it fires.
	require.NoError(t, worker.Dispatch(context.Background(), DispatchRequest{JobID: "job-1", RetryCount: 1}))

	require.Eventually(t, func() bool {
		updates := sink.snapshot()
		return len(updates) > 0 && updates[len(updates)-1].status.IsTerminal()
	}, time.Second, 5*time.Millisecond)

	// Exactly one full run: two steps and one terminal outcome.
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sink.snapshot(), 3)
}

func TestSimulatedWorkerEndToEndThroughService(t *testing.T) {
	docs := document.NewMemStore()
	jobs := NewMemStore(docs)
	worker := NewSimulatedWorker(fastSimConfig(0), jobs)
	svc := NewService(ServiceConfig{}, jobs, docs, worker, nil, nil)
	worker.Bind(svc)

	doc := createDocument(t, docs, "user-1")
	job, err := svc.TriggerIngestion(context.Background(), "user-1", doc.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := jobs.Get(context.Background(), job.ID)
		return err == nil && got.Status == StatusCompleted
	}, time.Second, 5*time.Millisecond)

	got, err := docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, got.Status)
}

func TestSimulatedWorkerCleanupDeletesAgedTerminalJobs(t *testing.T) {
	docs := document.NewMemStore()
	jobs := NewMemStore(docs)

	cfg := fastSimConfig(0)
	cfg.AutoCleanup = config.AutoCleanupConfig{
		Enabled:  true,
		Interval: 10 * time.Millisecond,
		MaxAge:   time.Nanosecond,
	}
	worker := NewSimulatedWorker(cfg, jobs)

	job := &Job{DocumentID: "doc-1", Status: StatusCompleted}
	require.NoError(t, jobs.Create(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.StartCleanup(ctx)

	require.Eventually(t, func() bool {
		_, err := jobs.Get(context.Background(), job.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestSimulatedWorkerRetiresGenerationEntries(t *testing.T) {
	sink := &recordSink{}
	worker := NewSimulatedWorker(fastSimConfig(0), NewMemStore(document.NewMemStore()))
	worker.Bind(sink)

	genEntries := func() int {
		worker.mu.Lock()
		defer worker.mu.Unlock()
		return len(worker.gen)
	}

	// A finished run must not leave its generation entry behind, or the map
	// grows with every job the server ever processes.
	require.NoError(t, worker.Dispatch(context.Background(), DispatchRequest{JobID: "job-1"}))
	require.NoError(t, worker.Dispatch(context.Background(), DispatchRequest{JobID: "job-2"}))

	require.Eventually(t, func() bool {
		updates := sink.snapshot()
		terminal := 0
		for _, u := range updates {
			if u.status.IsTerminal() {
				terminal++
			}
		}
		return terminal == 2
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return genEntries() == 0 }, time.Second, 5*time.Millisecond)

	// Cancelling retires the entry immediately.
	require.NoError(t, worker.Dispatch(context.Background(), DispatchRequest{JobID: "job-3"}))
	require.Equal(t, 1, genEntries())
	worker.Cancel("job-3")
	assert.Equal(t, 0, genEntries())
}
