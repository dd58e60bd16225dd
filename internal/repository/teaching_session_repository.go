package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// TeachingSessionRepository persists sessions created for assigned requests.
type TeachingSessionRepository struct {
	db *sqlx.DB
}

// NewTeachingSessionRepository constructs the repository.
func NewTeachingSessionRepository(db *sqlx.DB) *TeachingSessionRepository {
	return &TeachingSessionRepository{db: db}
}

// Create inserts a session. A second session for the same request is ignored.
func (r *TeachingSessionRepository) Create(ctx context.Context, session *models.TeachingSession) error {
	if session == nil {
		return fmt.Errorf("teaching session payload is nil")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = models.SessionScheduled
	}
	session.CreatedAt = time.Now().UTC()

	const query = `
INSERT INTO teaching_sessions (id, request_id, teacher_id, date, start_time, end_time, mode, status, created_at)
VALUES (:id, :request_id, :teacher_id, :date, :start_time, :end_time, :mode, :status, :created_at)
ON CONFLICT (request_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create teaching session: %w", err)
	}
	return nil
}
