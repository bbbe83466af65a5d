package registrations

import "errors"

var (
	// ErrNotFound means the registration id does not exist.
	ErrNotFound = errors.New("registration not found")
	// ErrNotPending means an approve/reject hit a record already in a
	// terminal state. Re-approving is rejected rather than silently accepted
	// so a prior moderation decision is never masked.
	ErrNotPending = errors.New("registration is not pending")
	// ErrNotApproved means attendance was set on a non-approved record.
	ErrNotApproved = errors.New("registration is not approved")
	// ErrDuplicate means the user already registered for the event.
	ErrDuplicate = errors.New("already registered for this event")
)
