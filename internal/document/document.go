// Package document defines the document entity owned by the upload/CRUD
// side of the platform, plus the narrow store surface the ingestion
// subsystem needs: existence checks, ownership, and status mirroring.
package document

import (
	"context"
	"time"
)

// Status is the coarse document state mirrored from the ingestion job.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Document is a stored document's metadata.
type Document struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	FilePath  string    `json:"file_path"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence surface for documents.
type Store interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, ownerID string, page, limit int) ([]Document, int, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
