package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusconnect/backend/internal/models"
)

const (
	regColumns = `r.id, r.user_id, r.event_id, r.status, r.attended, r.rejection_reason, r.created_at, r.updated_at`

	detailFrom = ` FROM registrations r
		JOIN users u ON u.id = r.user_id
		JOIN events e ON e.id = r.event_id`

	detailSelect = `SELECT ` + regColumns + `, u.full_name, u.email, u.college, u.year, e.name` + detailFrom
)

// Repository handles registration persistence. All moderation transitions are
// single conditional UPDATEs so the precondition check and the write are one
// atomic unit; of two concurrent moderators exactly one wins and the loser
// observes a conflict.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending registration. Returns ErrDuplicate when the user
// already holds a registration for the event.
func (r *Repository) Create(ctx context.Context, userID, eventID uuid.UUID) (*models.Registration, error) {
	const q = `INSERT INTO registrations (id, user_id, event_id)
		VALUES (gen_random_uuid(), $1, $2)
		RETURNING id, user_id, event_id, status, attended, rejection_reason, created_at, updated_at`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, userID, eventID).Scan(
		&reg.ID, &reg.UserID, &reg.EventID, &reg.Status, &reg.Attended, &reg.RejectionReason, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &reg, nil
}

// GetByID returns a registration by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	const q = `SELECT ` + regColumns + ` FROM registrations r WHERE r.id = $1`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&reg.ID, &reg.UserID, &reg.EventID, &reg.Status, &reg.Attended, &reg.RejectionReason, &reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Approve transitions a pending registration to approved. Returns
// ErrNotFound for an unknown id and ErrNotPending when the record is already
// in a terminal state.
func (r *Repository) Approve(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	const q = `UPDATE registrations r SET status = 'approved', updated_at = NOW()
		WHERE r.id = $1 AND r.status = 'pending'
		RETURNING ` + regColumns
	return r.transition(ctx, q, ErrNotPending, id)
}

// Reject transitions a pending registration to rejected with an optional
// free-text reason.
func (r *Repository) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.Registration, error) {
	const q = `UPDATE registrations r SET status = 'rejected', rejection_reason = NULLIF($2, ''), updated_at = NOW()
		WHERE r.id = $1 AND r.status = 'pending'
		RETURNING ` + regColumns
	return r.transition(ctx, q, ErrNotPending, id, reason)
}

// SetAttendance sets the attendance flag. Both directions require the record
// to be approved; the status precondition is enforced here regardless of any
// caller-side gating.
func (r *Repository) SetAttendance(ctx context.Context, id uuid.UUID, attended bool) (*models.Registration, error) {
	const q = `UPDATE registrations r SET attended = $2, updated_at = NOW()
		WHERE r.id = $1 AND r.status = 'approved'
		RETURNING ` + regColumns
	return r.transition(ctx, q, ErrNotApproved, id, attended)
}

// transition runs a conditional UPDATE and, when no row matched, re-reads the
// record to distinguish NotFound from a precondition conflict.
func (r *Repository) transition(ctx context.Context, q string, conflict error, id uuid.UUID, extra ...interface{}) (*models.Registration, error) {
	args := append([]interface{}{id}, extra...)
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, args...).Scan(
		&reg.ID, &reg.UserID, &reg.EventID, &reg.Status, &reg.Attended, &reg.RejectionReason, &reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var status string
		err = r.pool.QueryRow(ctx, `SELECT status FROM registrations WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, conflict
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// List returns one page of registrations matching the filter plus the total
// match count irrespective of page.
func (r *Repository) List(ctx context.Context, f Filter, p Page) ([]models.RegistrationDetail, int, error) {
	if f.MatchesNothing() {
		return nil, 0, nil
	}
	where, args := f.SQL()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+detailFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}

	q := detailSelect + where + f.OrderBy() +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, q, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var list []models.RegistrationDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, d)
	}
	return list, total, rows.Err()
}

// Stream walks every registration matching the filter in order, invoking fn
// per row. It never paginates; an fn error or context cancellation aborts the
// walk and releases the cursor.
func (r *Repository) Stream(ctx context.Context, f Filter, fn func(models.RegistrationDetail) error) error {
	if f.MatchesNothing() {
		return nil
	}
	where, args := f.SQL()
	rows, err := r.pool.Query(ctx, detailSelect+where+f.OrderBy(), args...)
	if err != nil {
		return fmt.Errorf("stream registrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanDetail(rows pgx.Rows) (models.RegistrationDetail, error) {
	var d models.RegistrationDetail
	err := rows.Scan(
		&d.ID, &d.UserID, &d.EventID, &d.Status, &d.Attended, &d.RejectionReason, &d.CreatedAt, &d.UpdatedAt,
		&d.UserName, &d.UserEmail, &d.College, &d.Year, &d.EventName)
	return d, err
}
