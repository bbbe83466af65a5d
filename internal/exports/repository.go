// Package exports manages asynchronous export jobs archived to S3.
package exports

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusconnect/backend/internal/models"
)

// ErrNotFound means the export job id does not exist.
var ErrNotFound = errors.New("export job not found")

// Repository handles export job persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an export job repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a queued export job carrying its filter snapshot.
func (r *Repository) Create(ctx context.Context, job *models.ExportJob) error {
	const q = `INSERT INTO export_jobs (id, requested_by, search, status_filter, event_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, state, created_at`
	return r.pool.QueryRow(ctx, q, job.RequestedBy, job.Search, job.Status, job.EventID).
		Scan(&job.ID, &job.State, &job.CreatedAt)
}

// GetByID returns an export job by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExportJob, error) {
	const q = `SELECT id, requested_by, search, status_filter, event_id, state, s3_key, row_count, error, created_at, completed_at
		FROM export_jobs WHERE id = $1`
	var job models.ExportJob
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID, &job.RequestedBy, &job.Search, &job.Status, &job.EventID,
		&job.State, &job.S3Key, &job.RowCount, &job.Error, &job.CreatedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing moves a queued job to processing. Returns false when the
// job was not in the queued state, so a redelivered job is not run twice.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE export_jobs SET state = 'processing' WHERE id = $1 AND state = 'queued'`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted records the archive location and row count.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, s3Key string, rowCount int) error {
	const q = `UPDATE export_jobs SET state = 'completed', s3_key = $2, row_count = $3, error = '', completed_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, s3Key, rowCount)
	return err
}

// MarkFailed records the failure message and re-queues nothing; retries are
// the queue's business.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	const q = `UPDATE export_jobs SET state = 'failed', error = $2, completed_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, msg)
	return err
}

// Requeue moves a failed or stuck processing job back to queued for a retry.
func (r *Repository) Requeue(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE export_jobs SET state = 'queued', error = '', completed_at = NULL
		WHERE id = $1 AND state IN ('processing', 'failed')`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
