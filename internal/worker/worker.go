package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusconnect/backend/internal/models"
	"github.com/campusconnect/backend/internal/registrations"
	"github.com/campusconnect/backend/pkg/queue"
	"github.com/campusconnect/backend/pkg/storage"
)

// JobStore is the export job persistence the worker needs.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExportJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, s3Key string, rowCount int) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string) error
	Requeue(ctx context.Context, id uuid.UUID) error
}

// RegistrationStreamer yields registration details matching a filter one row
// at a time.
type RegistrationStreamer interface {
	Stream(ctx context.Context, f registrations.Filter, fn func(models.RegistrationDetail) error) error
}

// ObjectStore is the slice of the S3 client the worker uses.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) (string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ExportsBucket() string
}

// JobQueue delivers jobs and re-enqueues failed ones.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ExportProcessor processes export archive jobs: stream the filtered
// registration set as CSV straight into S3, then record the result.
type ExportProcessor struct {
	exportRepo JobStore
	regRepo    RegistrationStreamer
	s3         ObjectStore
	queue      JobQueue
	logger     *zap.Logger
	backoff    time.Duration
}

// NewExportProcessor creates an export archive processor.
func NewExportProcessor(exportRepo JobStore, regRepo RegistrationStreamer, s3 ObjectStore, q JobQueue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{
		exportRepo: exportRepo,
		regRepo:    regRepo,
		s3:         s3,
		queue:      q,
		logger:     logger,
		backoff:    queue.RetryBackoff,
	}
}

// Process executes one export archive job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	exp, err := p.exportRepo.GetByID(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("export job not found: %s", payload.JobID)
	}
	if exp.State == models.ExportCompleted {
		p.logger.Info("export job already completed", zap.String("job_id", exp.ID.String()))
		return nil
	}
	if exp.State != models.ExportQueued {
		// Redelivery after a failed or interrupted attempt.
		if err := p.exportRepo.Requeue(ctx, exp.ID); err != nil {
			return fmt.Errorf("requeue: %w", err)
		}
	}
	ok, err := p.exportRepo.MarkProcessing(ctx, exp.ID)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if !ok {
		p.logger.Info("export job claimed elsewhere", zap.String("job_id", exp.ID.String()))
		return nil
	}

	f := filterForJob(exp)
	key := storage.ExportKey(exp.ID.String(), exp.CreatedAt)

	// Stream CSV rows into the uploader through a pipe; no full buffer.
	pr, pw := io.Pipe()
	var rowCount int
	writeDone := make(chan error, 1)
	go func() {
		n, werr := registrations.WriteCSV(pw, func(fn func(models.RegistrationDetail) error) error {
			return p.regRepo.Stream(ctx, f, fn)
		})
		rowCount = n
		pw.CloseWithError(werr)
		writeDone <- werr
	}()

	_, upErr := p.s3.Upload(ctx, p.s3.ExportsBucket(), key, "text/csv", pr)
	if upErr != nil {
		// The uploader may bail without draining the pipe; close the read
		// end so the writer goroutine cannot stay blocked in a pipe write.
		pr.CloseWithError(upErr)
	}
	writeErr := <-writeDone
	if upErr != nil || writeErr != nil {
		if upErr == nil {
			upErr = writeErr
		}
		_ = p.exportRepo.MarkFailed(ctx, exp.ID, upErr.Error())
		// Best-effort cleanup of a partially written object.
		if derr := p.s3.DeleteObject(ctx, p.s3.ExportsBucket(), key); derr != nil {
			p.logger.Warn("failed export object cleanup", zap.String("key", key), zap.Error(derr))
		}
		return fmt.Errorf("export job %s: %w", exp.ID, upErr)
	}

	if err := p.exportRepo.MarkCompleted(ctx, exp.ID, key, rowCount); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.logger.Info("export job completed",
		zap.String("job_id", exp.ID.String()),
		zap.String("s3_key", key),
		zap.Int("rows", rowCount),
	)
	return nil
}

// filterForJob rebuilds the list filter from the job's snapshot through the
// same parser the HTTP surface uses, so semantics cannot diverge.
func filterForJob(exp *models.ExportJob) registrations.Filter {
	q := url.Values{}
	q.Set("search", exp.Search)
	q.Set("status", exp.Status)
	if exp.EventID != nil {
		q.Set("eventId", exp.EventID.String())
	}
	return registrations.FilterFromQuery(q)
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(p.backoff)
			continue
		}
	}
}
