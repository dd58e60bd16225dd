package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

const availabilityColumns = `id, teacher_id, date, start_time, end_time, status, is_recurring, recurrence_pattern, recurrence_end_date, notes, created_at, updated_at`

// AvailabilityRepository stores teacher calendar intervals.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an interval.
func (r *AvailabilityRepository) Create(ctx context.Context, exec sqlx.ExtContext, avail *models.TeacherAvailability) error {
	if avail == nil {
		return fmt.Errorf("availability payload is nil")
	}
	if avail.ID == "" {
		avail.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if avail.CreatedAt.IsZero() {
		avail.CreatedAt = now
	}
	avail.UpdatedAt = now

	const query = `
INSERT INTO teacher_availability (id, teacher_id, date, start_time, end_time, status, is_recurring, recurrence_pattern, recurrence_end_date, notes, created_at, updated_at)
VALUES (:id, :teacher_id, :date, :start_time, :end_time, :status, :is_recurring, :recurrence_pattern, :recurrence_end_date, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, avail); err != nil {
		return fmt.Errorf("create availability: %w", err)
	}
	return nil
}

// FindOverlapping returns intervals of the same teacher, date and status that intersect window.
func (r *AvailabilityRepository) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, window models.TimeWindow, status models.AvailabilityStatus) ([]models.TeacherAvailability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM teacher_availability
WHERE teacher_id = $1 AND date = $2 AND status = $3 AND start_time < $4 AND end_time > $5`
	var overlaps []models.TeacherAvailability
	if err := sqlx.SelectContext(ctx, r.exec(exec), &overlaps, query, teacherID, date, status, window.End, window.Start); err != nil {
		return nil, fmt.Errorf("find overlapping availability: %w", err)
	}
	return overlaps, nil
}

// LockContaining returns the teacher's AVAILABLE interval covering window, locked for update.
func (r *AvailabilityRepository) LockContaining(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, window models.TimeWindow) (*models.TeacherAvailability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM teacher_availability
WHERE teacher_id = $1 AND date = $2 AND status = $3 AND start_time <= $4 AND end_time >= $5
ORDER BY start_time LIMIT 1 FOR UPDATE`
	var avail models.TeacherAvailability
	if err := sqlx.GetContext(ctx, r.exec(exec), &avail, query, teacherID, date, models.AvailabilityAvailable, window.Start, window.End); err != nil {
		return nil, err
	}
	return &avail, nil
}

// Delete removes an interval.
func (r *AvailabilityRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM teacher_availability WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	return requireAffected(result, "availability delete")
}

// List returns a teacher's intervals ordered chronologically.
func (r *AvailabilityRepository) List(ctx context.Context, filter models.AvailabilityFilter) ([]models.TeacherAvailability, error) {
	conditions := []string{"teacher_id = ?"}
	args := []interface{}{filter.TeacherID}
	if filter.From != nil {
		conditions = append(conditions, "date >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "date <= ?")
		args = append(args, *filter.To)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	query := sqlx.Rebind(sqlx.DOLLAR, `SELECT ` + availabilityColumns + ` FROM teacher_availability WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY date, start_time`)

	var list []models.TeacherAvailability
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return list, nil
}
