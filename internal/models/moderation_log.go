package models

import (
	"time"

	"github.com/google/uuid"
)

// ModerationAction identifies what a moderator did to a registration.
type ModerationAction string

const (
	ActionApprove     ModerationAction = "approve"
	ActionReject      ModerationAction = "reject"
	ActionAttendance  ModerationAction = "attendance"
	ActionBulkApprove ModerationAction = "bulk_approve"
)

// ModerationLog is one audit-trail entry for a registration transition.
type ModerationLog struct {
	ID             uuid.UUID        `json:"id"`
	RegistrationID uuid.UUID        `json:"registration_id"`
	ActorID        uuid.UUID        `json:"actor_id"`
	Action         ModerationAction `json:"action"`
	Detail         string           `json:"detail,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
