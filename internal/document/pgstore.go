package document

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/docuflow/docuflow/pkg/errors"
	"github.com/docuflow/docuflow/pkg/postgres"
)

// PGStore implements Store against PostgreSQL.
type PGStore struct {
	db *postgres.Client
}

// NewPGStore creates a PostgreSQL-backed document store.
func NewPGStore(db *postgres.Client) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusUploaded
	}
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO documents (id, owner_id, title, file_path, file_type, file_size, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.OwnerID, doc.Title, doc.FilePath, doc.FileType, doc.FileSize, doc.Status, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, owner_id, title, file_path, file_type, file_size, status, created_at, updated_at
		 FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.FilePath, &doc.FileType, &doc.FileSize,
		&doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document "+id+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return &doc, nil
}

func (s *PGStore) List(ctx context.Context, ownerID string, page, limit int) ([]Document, int, error) {
	offset := (page - 1) * limit

	var total int
	if err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting documents: %w", err)
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, owner_id, title, file_path, file_type, file_size, status, created_at, updated_at
		 FROM documents WHERE owner_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.FilePath, &doc.FileType,
			&doc.FileSize, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	result, err := s.db.DB.ExecContext(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document "+id+" not found")
	}
	return nil
}
