package exports

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusconnect/backend/internal/middleware"
	"github.com/campusconnect/backend/internal/models"
	"github.com/campusconnect/backend/pkg/queue"
	"github.com/campusconnect/backend/pkg/response"
	"github.com/campusconnect/backend/pkg/storage"
)

// CreateRequest is the body for POST /registrations/export-jobs. The fields
// carry the same meaning as the list endpoint's query parameters.
type CreateRequest struct {
	Search  string `json:"search"`
	Status  string `json:"status"`
	EventID string `json:"eventId"`
}

// JobResponse is an export job plus a presigned download URL once complete.
type JobResponse struct {
	*models.ExportJob
	DownloadURL string `json:"download_url,omitempty"`
}

// Handler handles asynchronous export job endpoints. s3 may be nil, in which
// case the feature answers 503.
type Handler struct {
	repo   *Repository
	queue  *queue.Queue
	s3     *storage.S3
	logger *zap.Logger
}

// NewHandler creates an export jobs handler.
func NewHandler(repo *Repository, q *queue.Queue, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, queue: q, s3: s3, logger: logger}
}

// Create handles POST /registrations/export-jobs. Snapshots the filter and
// enqueues the archive job for the worker.
func (h *Handler) Create(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "export archive storage is not configured")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if req.Status != "" && req.Status != "all" && !models.RegistrationStatus(req.Status).Valid() {
		response.BadRequest(c, "invalid status")
		return
	}

	job := &models.ExportJob{
		RequestedBy: requesterID(c),
		Search:      req.Search,
		Status:      req.Status,
	}
	if req.EventID != "" && req.EventID != "all" {
		id, err := uuid.Parse(req.EventID)
		if err != nil {
			response.BadRequest(c, "invalid eventId")
			return
		}
		job.EventID = &id
	}

	if err := h.repo.Create(c.Request.Context(), job); err != nil {
		h.logger.Error("create export job failed", zap.Error(err))
		response.Internal(c, "failed to create export job")
		return
	}
	if err := h.queue.EnqueueExport(c.Request.Context(), queue.ExportPayload{JobID: job.ID}); err != nil {
		h.logger.Error("enqueue export job failed", zap.Error(err), zap.String("job_id", job.ID.String()))
		_ = h.repo.MarkFailed(c.Request.Context(), job.ID, "enqueue failed")
		response.Internal(c, "failed to enqueue export job")
		return
	}
	response.Created(c, JobResponse{ExportJob: job})
}

// Get handles GET /registrations/export-jobs/:id.
func (h *Handler) Get(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "export archive storage is not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid export job id")
		return
	}
	job, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "export job not found")
			return
		}
		response.Internal(c, "failed to load export job")
		return
	}

	resp := JobResponse{ExportJob: job}
	if job.State == models.ExportCompleted && job.S3Key != "" {
		url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.ExportsBucket(), job.S3Key, h.s3.PresignExpire())
		if err != nil {
			h.logger.Error("presign export download failed", zap.Error(err), zap.String("job_id", job.ID.String()))
			response.Internal(c, "failed to presign download")
			return
		}
		resp.DownloadURL = url
	}
	response.OK(c, resp)
}

func requesterID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(middleware.ContextUserID)
	id, _ := v.(uuid.UUID)
	return id
}
