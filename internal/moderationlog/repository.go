// Package moderationlog persists the audit trail of moderation actions.
package moderationlog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusconnect/backend/internal/models"
)

// Repository handles moderation log persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a moderation log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record appends one audit entry.
func (r *Repository) Record(ctx context.Context, entry *models.ModerationLog) error {
	const q = `INSERT INTO moderation_logs (id, registration_id, actor_id, action, detail)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, entry.RegistrationID, entry.ActorID, entry.Action, entry.Detail).
		Scan(&entry.ID, &entry.CreatedAt)
}

// ListByRegistration returns all audit entries for a registration, newest
// first.
func (r *Repository) ListByRegistration(ctx context.Context, registrationID uuid.UUID) ([]models.ModerationLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, registration_id, actor_id, action, detail, created_at
		FROM moderation_logs WHERE registration_id = $1 ORDER BY created_at DESC`, registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ModerationLog
	for rows.Next() {
		var entry models.ModerationLog
		if err := rows.Scan(&entry.ID, &entry.RegistrationID, &entry.ActorID, &entry.Action, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	return list, rows.Err()
}
