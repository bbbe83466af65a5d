package registrations

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusconnect/backend/internal/middleware"
	"github.com/campusconnect/backend/internal/models"
	"github.com/campusconnect/backend/pkg/response"
)

// MaxBulkIDs caps the number of ids accepted by a single bulk request.
const MaxBulkIDs = 500

// Store is the registration persistence contract the handlers run against.
// Implementations must make each transition's precondition check and write a
// single atomic unit.
type Store interface {
	Create(ctx context.Context, userID, eventID uuid.UUID) (*models.Registration, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	Approve(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Registration, error)
	SetAttendance(ctx context.Context, id uuid.UUID, attended bool) (*models.Registration, error)
	List(ctx context.Context, f Filter, p Page) ([]models.RegistrationDetail, int, error)
	Stream(ctx context.Context, f Filter, fn func(models.RegistrationDetail) error) error
}

// EventGetter resolves event references for the intake path.
type EventGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// AuditLog records and lists moderation actions.
type AuditLog interface {
	Record(ctx context.Context, entry *models.ModerationLog) error
	ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]models.ModerationLog, error)
}

// RejectRequest is the body for PATCH /registrations/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// AttendanceRequest is the body for PATCH /registrations/:id/attendance.
type AttendanceRequest struct {
	Attended *bool `json:"attended" binding:"required"`
}

// BulkApproveRequest is the body for POST /registrations/bulk-approve.
type BulkApproveRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// BulkFailure is one failed id in a bulk report.
type BulkFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult is the partial-failure report for a bulk operation. All ids are
// attempted; failures are reported, never swallowed.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	store  Store
	events EventGetter
	audit  AuditLog
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(store Store, events EventGetter, audit AuditLog, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, events: events, audit: audit, logger: logger}
}

// Register handles POST /events/:id/register. Creates a pending registration
// for the authenticated user; one registration per (user, event).
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	if _, err := h.events.GetByID(c.Request.Context(), eventID); err != nil {
		response.NotFound(c, "event not found")
		return
	}

	reg, err := h.store.Create(c.Request.Context(), actorID(c), eventID)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			response.Conflict(c, "already registered for this event")
			return
		}
		h.logger.Error("create registration failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to register")
		return
	}
	response.Created(c, reg)
}

// List handles GET /registrations. Filtered, paginated, with a total count
// covering all pages.
func (h *Handler) List(c *gin.Context) {
	f := FilterFromQuery(c.Request.URL.Query())
	p := PageFromQuery(c.Request.URL.Query())

	items, total, err := h.store.List(c.Request.Context(), f, p)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Internal(c, "failed to list registrations")
		return
	}
	if items == nil {
		items = []models.RegistrationDetail{}
	}
	response.OK(c, response.Page{Items: items, Total: total, Page: p.Number, Limit: p.Limit})
}

// Approve handles PATCH /registrations/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reg, err := h.store.Approve(c.Request.Context(), id)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}
	h.record(c, reg.ID, models.ActionApprove, "")
	response.OK(c, reg)
}

// Reject handles PATCH /registrations/:id/reject.
func (h *Handler) Reject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req RejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	reg, err := h.store.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}
	h.record(c, reg.ID, models.ActionReject, req.Reason)
	response.OK(c, reg)
}

// SetAttendance handles PATCH /registrations/:id/attendance. Both setting and
// clearing the flag require an approved registration.
func (h *Handler) SetAttendance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reg, err := h.store.SetAttendance(c.Request.Context(), id, *req.Attended)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}
	detail := "absent"
	if reg.Attended {
		detail = "attended"
	}
	h.record(c, reg.ID, models.ActionAttendance, detail)
	response.OK(c, reg)
}

// BulkApprove handles POST /registrations/bulk-approve. Each id is evaluated
// independently against the approve precondition; one id's failure never
// blocks the others. A second identical call is safe: those ids come back as
// failed instead of corrupting state.
func (h *Handler) BulkApprove(c *gin.Context) {
	var req BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		response.BadRequest(c, "ids must not be empty")
		return
	}
	if len(req.IDs) > MaxBulkIDs {
		response.BadRequest(c, "too many ids in one request")
		return
	}

	result := BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{ID: raw, Reason: "invalid id"})
			continue
		}
		reg, err := h.store.Approve(c.Request.Context(), id)
		switch {
		case err == nil:
			h.record(c, reg.ID, models.ActionBulkApprove, "")
			result.Succeeded = append(result.Succeeded, raw)
		case errors.Is(err, ErrNotFound):
			result.Failed = append(result.Failed, BulkFailure{ID: raw, Reason: "not found"})
		case errors.Is(err, ErrNotPending):
			result.Failed = append(result.Failed, BulkFailure{ID: raw, Reason: "not pending"})
		default:
			// Storage fault: ids already processed stay committed; abort the
			// rest rather than guessing at store state.
			h.logger.Error("bulk approve failed", zap.Error(err), zap.String("id", raw))
			response.Internal(c, "bulk approve aborted: "+raw)
			return
		}
	}
	response.OK(c, result)
}

// History handles GET /registrations/:id/history, newest first.
func (h *Handler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := h.store.GetByID(c.Request.Context(), id); err != nil {
		h.writeTransitionError(c, err)
		return
	}
	entries, err := h.audit.ListByRegistration(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list moderation history failed", zap.Error(err), zap.String("id", id.String()))
		response.Internal(c, "failed to load history")
		return
	}
	if entries == nil {
		entries = []models.ModerationLog{}
	}
	response.OK(c, entries)
}

// record appends an audit entry; best-effort, a failed write never fails the
// moderation action itself.
func (h *Handler) record(c *gin.Context, regID uuid.UUID, action models.ModerationAction, detail string) {
	entry := &models.ModerationLog{
		RegistrationID: regID,
		ActorID:        actorID(c),
		Action:         action,
		Detail:         detail,
	}
	if err := h.audit.Record(c.Request.Context(), entry); err != nil {
		h.logger.Warn("moderation log write failed", zap.Error(err), zap.String("registration_id", regID.String()))
	}
}

func (h *Handler) writeTransitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "registration not found")
	case errors.Is(err, ErrNotPending):
		response.Conflict(c, "registration is not pending")
	case errors.Is(err, ErrNotApproved):
		response.Conflict(c, "registration is not approved")
	default:
		h.logger.Error("registration transition failed", zap.Error(err))
		response.Internal(c, "registration update failed")
	}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return uuid.Nil, false
	}
	return id, true
}

func actorID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(middleware.ContextUserID)
	id, _ := v.(uuid.UUID)
	return id
}
