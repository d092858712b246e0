package document

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/docuflow/docuflow/pkg/errors"
)

// MemStore is an in-memory Store used with the simulated worker and in tests.
type MemStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemStore creates an empty in-memory document store.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]Document)}
}

func (s *MemStore) Create(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusUploaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = *doc
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document "+id+" not found")
	}
	return &doc, nil
}

func (s *MemStore) List(ctx context.Context, ownerID string, page, limit int) ([]Document, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var owned []Document
	for _, doc := range s.docs {
		if doc.OwnerID == ownerID {
			owned = append(owned, doc)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	total := len(owned)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return owned[start:end], total, nil
}

func (s *MemStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return apperrors.New(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document "+id+" not found")
	}
	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()
	s.docs[id] = doc
	return nil
}
