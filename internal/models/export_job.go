package models

import (
	"time"

	"github.com/google/uuid"
)

// ExportJobStatus is the lifecycle state of an asynchronous export.
type ExportJobStatus string

const (
	ExportQueued     ExportJobStatus = "queued"
	ExportProcessing ExportJobStatus = "processing"
	ExportCompleted  ExportJobStatus = "completed"
	ExportFailed     ExportJobStatus = "failed"
)

// ExportJob is an asynchronous registration export archived to S3. The
// filter fields are the same ones the list endpoint accepts.
type ExportJob struct {
	ID          uuid.UUID       `json:"id"`
	RequestedBy uuid.UUID       `json:"requested_by"`
	Search      string          `json:"search,omitempty"`
	Status      string          `json:"status_filter,omitempty"`
	EventID     *uuid.UUID      `json:"event_id,omitempty"`
	State       ExportJobStatus `json:"state"`
	S3Key       string          `json:"s3_key,omitempty"`
	RowCount    int             `json:"row_count"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
