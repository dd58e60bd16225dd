package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

const invitationColumns = `id, request_id, teacher_id, status, batch_number, invited_at, responded_at, response_note`

// InvitationRepository persists request invitations. (request_id, teacher_id) is unique.
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository constructs the repository.
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

func (r *InvitationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateBatch inserts PENDING invitations for teacherIDs and returns only the rows actually created.
// Teachers already invited to the request are skipped.
func (r *InvitationRepository) CreateBatch(ctx context.Context, exec sqlx.ExtContext, requestID string, teacherIDs []string, batch int) ([]models.Invitation, error) {
	const query = `
INSERT INTO request_invitations (id, request_id, teacher_id, status, batch_number, invited_at, response_note)
VALUES ($1, $2, $3, $4, $5, $6, '')
ON CONFLICT (request_id, teacher_id) DO NOTHING
RETURNING ` + invitationColumns

	target := r.exec(exec)
	now := time.Now().UTC()
	created := make([]models.Invitation, 0, len(teacherIDs))
	for _, teacherID := range teacherIDs {
		var inv models.Invitation
		err := sqlx.GetContext(ctx, target, &inv, query, uuid.NewString(), requestID, teacherID, models.InvitationStatusPending, batch, now)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create invitation for teacher %s: %w", teacherID, err)
		}
		created = append(created, inv)
	}
	return created, nil
}

// FindByID loads an invitation.
func (r *InvitationRepository) FindByID(ctx context.Context, id string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM request_invitations WHERE id = $1`
	var inv models.Invitation
	if err := r.db.GetContext(ctx, &inv, query, id); err != nil {
		return nil, err
	}
	return &inv, nil
}

// FindForTeacher loads the invitation a teacher holds for a request.
func (r *InvitationRepository) FindForTeacher(ctx context.Context, exec sqlx.ExtContext, requestID, teacherID string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM request_invitations WHERE request_id = $1 AND teacher_id = $2`
	var inv models.Invitation
	if err := sqlx.GetContext(ctx, r.exec(exec), &inv, query, requestID, teacherID); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListByRequest returns every invitation of a request ordered by batch and time.
func (r *InvitationRepository) ListByRequest(ctx context.Context, requestID string) ([]models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM request_invitations WHERE request_id = $1 ORDER BY batch_number, invited_at, teacher_id`
	var invitations []models.Invitation
	if err := r.db.SelectContext(ctx, &invitations, query, requestID); err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

// InvitedTeacherIDs returns every teacher invited to the request regardless of invitation status.
func (r *InvitationRepository) InvitedTeacherIDs(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]string, error) {
	const query = `SELECT teacher_id FROM request_invitations WHERE request_id = $1`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, requestID); err != nil {
		return nil, fmt.Errorf("list invited teachers: %w", err)
	}
	return ids, nil
}

// History returns invitations joined with teacher names for reporting.
func (r *InvitationRepository) History(ctx context.Context, requestID string) ([]models.InvitationHistoryEntry, error) {
	const query = `
SELECT i.id, i.request_id, i.teacher_id, i.status, i.batch_number, i.invited_at, i.responded_at, i.response_note,
       u.full_name AS teacher_name, u.email AS teacher_email
FROM request_invitations i
JOIN users u ON u.id = i.teacher_id
WHERE i.request_id = $1
ORDER BY i.batch_number, i.invited_at, i.teacher_id`
	var entries []models.InvitationHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, requestID); err != nil {
		return nil, fmt.Errorf("list invitation history: %w", err)
	}
	return entries, nil
}

// Respond moves a PENDING invitation to next. sql.ErrNoRows means it was no longer pending.
func (r *InvitationRepository) Respond(ctx context.Context, exec sqlx.ExtContext, id string, next models.InvitationStatus, note string) error {
	const query = `UPDATE request_invitations SET status = $1, responded_at = $2, response_note = $3 WHERE id = $4 AND status = $5`
	result, err := r.exec(exec).ExecContext(ctx, query, next, time.Now().UTC(), note, id, models.InvitationStatusPending)
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	return requireAffected(result, "invitation status")
}

// ResolvePending moves every still-PENDING invitation of the request, other than exceptID, to next
// and returns the teachers whose invitation changed.
func (r *InvitationRepository) ResolvePending(ctx context.Context, exec sqlx.ExtContext, requestID, exceptID string, next models.InvitationStatus) ([]string, error) {
	query := `UPDATE request_invitations SET status = $1, responded_at = $2 WHERE request_id = $3 AND status = $4`
	args := []interface{}{next, time.Now().UTC(), requestID, models.InvitationStatusPending}
	if exceptID != "" {
		query += ` AND id <> $5`
		args = append(args, exceptID)
	}
	query += ` RETURNING teacher_id`
	teacherIDs := []string{}
	if err := sqlx.SelectContext(ctx, r.exec(exec), &teacherIDs, query, args...); err != nil {
		return nil, fmt.Errorf("resolve pending invitations: %w", err)
	}
	return teacherIDs, nil
}
