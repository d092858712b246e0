package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/docuflow/docuflow/pkg/errors"
	"github.com/docuflow/docuflow/pkg/postgres"
)

const jobColumns = `id, document_id, status, progress, error_message, retry_count,
	started_at, completed_at, created_at, updated_at`

// PGStore implements JobStore against PostgreSQL. The schema carries a
// partial unique index on (document_id) over active statuses, so even a
// racing insert cannot create two active jobs for one document.
type PGStore struct {
	db *postgres.Client
}

// NewPGStore creates a PostgreSQL-backed job store.
func NewPGStore(db *postgres.Client) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	progress, err := marshalProgress(job.Progress)
	if err != nil {
		return err
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO ingestion_jobs (id, document_id, status, progress, error_message, retry_count,
		   started_at, completed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.DocumentID, job.Status, progress, job.ErrorMessage,
		job.RetryCount, job.StartedAt, job.CompletedAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting ingestion job: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrJobNotFound, http.StatusNotFound, "job "+id+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying ingestion job: %w", err)
	}
	return job, nil
}

func (s *PGStore) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	progress, err := marshalProgress(job.Progress)
	if err != nil {
		return err
	}
	result, err := s.db.DB.ExecContext(ctx,
		`UPDATE ingestion_jobs
		 SET status = $1, progress = $2, error_message = $3, retry_count = $4,
		     started_at = $5, completed_at = $6, updated_at = $7
		 WHERE id = $8`,
		job.Status, progress, job.ErrorMessage, job.RetryCount,
		job.StartedAt, job.CompletedAt, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("updating ingestion job: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.New(apperrors.ErrJobNotFound, http.StatusNotFound, "job "+job.ID+" not found")
	}
	return nil
}

func (s *PGStore) FindActiveByDocument(ctx context.Context, documentID string) (*Job, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs
		 WHERE document_id = $1 AND status IN ('queued', 'processing')
		 ORDER BY created_at DESC LIMIT 1`, documentID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying active job: %w", err)
	}
	return job, nil
}

func (s *PGStore) ListByOwner(ctx context.Context, ownerID string, page, limit int) ([]Job, int, error) {
	offset := (page - 1) * limit

	var total int
	if err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingestion_jobs j
		 JOIN documents d ON d.id = j.document_id
		 WHERE d.owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting owner jobs: %w", err)
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT j.id, j.document_id, j.status, j.progress, j.error_message, j.retry_count,
		        j.started_at, j.completed_at, j.created_at, j.updated_at
		 FROM ingestion_jobs j
		 JOIN documents d ON d.id = j.document_id
		 WHERE d.owner_id = $1
		 ORDER BY j.created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing owner jobs: %w", err)
	}
	defer rows.Close()
	jobs, err := scanJobs(rows)
	return jobs, total, err
}

func (s *PGStore) List(ctx context.Context, status Status, page, limit int) ([]Job, int, error) {
	offset := (page - 1) * limit

	var total int
	var rows *sql.Rows
	var err error
	if status != "" {
		if err = s.db.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM ingestion_jobs WHERE status = $1`, status,
		).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("counting jobs: %w", err)
		}
		rows, err = s.db.DB.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM ingestion_jobs WHERE status = $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, limit, offset,
		)
	} else {
		if err = s.db.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM ingestion_jobs`,
		).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("counting jobs: %w", err)
		}
		rows, err = s.db.DB.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM ingestion_jobs
			 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()
	jobs, err := scanJobs(rows)
	return jobs, total, err
}

func (s *PGStore) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ingestion_jobs WHERE status IN ('queued', 'processing')`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting active jobs: %w", err)
	}
	return count, nil
}

func (s *PGStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM ingestion_jobs
		 WHERE status IN ('completed', 'failed', 'cancelled') AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting terminal jobs: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var progress []byte
	var errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.DocumentID, &job.Status, &progress, &errorMessage,
		&job.RetryCount, &startedAt, &completedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(progress) > 0 {
		var p Progress
		if err := json.Unmarshal(progress, &p); err != nil {
			return nil, fmt.Errorf("decoding job progress: %w", err)
		}
		job.Progress = &p
	}
	if errorMessage.Valid {
		job.ErrorMessage = errorMessage.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func marshalProgress(p *Progress) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding job progress: %w", err)
	}
	return data, nil
}
