package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the moderation state of a registration.
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
)

// Valid reports whether s is a known status value.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s admits no further moderation transitions.
func (s RegistrationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo reports whether the status machine permits s -> next.
// The only edges are pending->approved and pending->rejected; records never
// leave a terminal state.
func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

// Registration is a user's claim on a slot in an event. Created pending by
// the intake path; mutated only by moderation and bulk operations.
type Registration struct {
	ID              uuid.UUID          `json:"id"`
	UserID          uuid.UUID          `json:"user_id"`
	EventID         uuid.UUID          `json:"event_id"`
	Status          RegistrationStatus `json:"status"`
	Attended        bool               `json:"attended"`
	RejectionReason *string            `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// RegistrationDetail is a registration joined with the user and event fields
// the admin console and the CSV export render.
type RegistrationDetail struct {
	Registration
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	College   string `json:"college"`
	Year      int    `json:"year"`
	EventName string `json:"event_name"`
}
