package ingest

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/document"
	apperrors "github.com/docuflow/docuflow/pkg/errors"
)

// MemStore is an in-memory JobStore. It backs the simulated worker mode and
// tests. Ownership scoping is resolved through the document store.
type MemStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
	docs document.Store
}

// NewMemStore creates an empty in-memory job store. The document store is
// used to resolve job ownership for scoped listings.
func NewMemStore(docs document.Store) *MemStore {
	return &MemStore{
		jobs: make(map[string]Job),
		docs: docs,
	}
}

func (s *MemStore) Create(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrJobNotFound, http.StatusNotFound, "job "+id+" not found")
	}
	return cloneJob(job), nil
}

func (s *MemStore) Update(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return apperrors.New(apperrors.ErrJobNotFound, http.StatusNotFound, "job "+job.ID+" not found")
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemStore) FindActiveByDocument(ctx context.Context, documentID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.DocumentID == documentID && job.Status.IsActive() {
			return cloneJob(job), nil
		}
	}
	return nil, nil
}

func (s *MemStore) ListByOwner(ctx context.Context, ownerID string, page, limit int) ([]Job, int, error) {
	s.mu.RLock()
	all := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job)
	}
	s.mu.RUnlock()

	var owned []Job
	for _, job := range all {
		doc, err := s.docs.Get(ctx, job.DocumentID)
		if err != nil {
			continue
		}
		if doc.OwnerID == ownerID {
			owned = append(owned, job)
		}
	}
	sortNewestFirst(owned)
	return paginate(owned, page, limit)
}

func (s *MemStore) List(ctx context.Context, status Status, page, limit int) ([]Job, int, error) {
	s.mu.RLock()
	var matched []Job
	for _, job := range s.jobs {
		if status == "" || job.Status == status {
			matched = append(matched, job)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	return paginate(matched, page, limit)
}

func (s *MemStore) CountActive(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, job := range s.jobs {
		if job.Status.IsActive() {
			count++
		}
	}
	return count, nil
}

func (s *MemStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func sortNewestFirst(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}

func paginate(jobs []Job, page, limit int) ([]Job, int, error) {
	total := len(jobs)
	start := (page - 1) * limit
	if start < 0 || start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]Job, end-start)
	copy(out, jobs[start:end])
	return out, total, nil
}

func cloneJob(job Job) *Job {
	out := job
	if job.Progress != nil {
		p := *job.Progress
		out.Progress = &p
	}
	if job.StartedAt != nil {
		t := *job.StartedAt
		out.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
