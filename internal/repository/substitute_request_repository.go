package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

const substituteRequestColumns = `id, school_id, requested_by, subject, grade, section, date, start_time, end_time, status, priority, mode, description, assigned_teacher_id, current_batch, cancellation_reason, created_at, updated_at`

// SubstituteRequestRepository persists substitute requests. Every status write is conditional on the prior status.
type SubstituteRequestRepository struct {
	db *sqlx.DB
}

// NewSubstituteRequestRepository constructs the repository.
func NewSubstituteRequestRepository(db *sqlx.DB) *SubstituteRequestRepository {
	return &SubstituteRequestRepository{db: db}
}

func (r *SubstituteRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new request in PENDING state.
func (r *SubstituteRequestRepository) Create(ctx context.Context, req *models.SubstituteRequest) error {
	if req == nil {
		return fmt.Errorf("substitute request payload is nil")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	const query = `
INSERT INTO substitute_requests (id, school_id, requested_by, subject, grade, section, date, start_time, end_time, status, priority, mode, description, current_batch, created_at, updated_at)
VALUES (:id, :school_id, :requested_by, :subject, :grade, :section, :date, :start_time, :end_time, :status, :priority, :mode, :description, :current_batch, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create substitute request: %w", err)
	}
	return nil
}

// FindByID loads a request by id.
func (r *SubstituteRequestRepository) FindByID(ctx context.Context, id string) (*models.SubstituteRequest, error) {
	query := `SELECT ` + substituteRequestColumns + ` FROM substitute_requests WHERE id = $1`
	var req models.SubstituteRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// LockByID loads a request and holds a row lock until the surrounding transaction ends.
func (r *SubstituteRequestRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SubstituteRequest, error) {
	query := `SELECT ` + substituteRequestColumns + ` FROM substitute_requests WHERE id = $1 FOR UPDATE`
	var req models.SubstituteRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns a page of requests for a school along with the total count.
func (r *SubstituteRequestRepository) List(ctx context.Context, filter models.SubstituteRequestFilter) ([]models.SubstituteRequest, int, error) {
	conditions := []string{"school_id = ?"}
	args := []interface{}{filter.SchoolID}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Date != nil {
		conditions = append(conditions, "date = ?")
		args = append(args, *filter.Date)
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	countQuery := sqlx.Rebind(sqlx.DOLLAR, `SELECT COUNT(*) FROM substitute_requests ` + where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count substitute requests: %w", err)
	}

	listQuery := sqlx.Rebind(sqlx.DOLLAR, `SELECT ` + substituteRequestColumns + ` FROM substitute_requests ` + where + ` ORDER BY date DESC, start_time DESC, id LIMIT ? OFFSET ?`)
	listArgs := append(append([]interface{}{}, args...), size, (page-1)*size)
	var requests []models.SubstituteRequest
	if err := r.db.SelectContext(ctx, &requests, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list substitute requests: %w", err)
	}
	return requests, total, nil
}

// ListAwaiting returns every request still waiting on an invitation wave, oldest update first.
func (r *SubstituteRequestRepository) ListAwaiting(ctx context.Context) ([]models.SubstituteRequest, error) {
	query := `SELECT ` + substituteRequestColumns + ` FROM substitute_requests WHERE status = $1 ORDER BY updated_at, id`
	var requests []models.SubstituteRequest
	if err := r.db.SelectContext(ctx, &requests, query, models.RequestStatusAwaitingAcceptance); err != nil {
		return nil, fmt.Errorf("list awaiting substitute requests: %w", err)
	}
	return requests, nil
}

// CompareAndSetStatus moves the request to next only while its status is one of from.
// sql.ErrNoRows means the precondition did not hold.
func (r *SubstituteRequestRepository) CompareAndSetStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.RequestStatus, next models.RequestStatus) error {
	const query = `UPDATE substitute_requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4)`
	result, err := r.exec(exec).ExecContext(ctx, query, next, time.Now().UTC(), id, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("update substitute request status: %w", err)
	}
	return requireAffected(result, "substitute request status")
}

// MarkDispatched records that batch has been sent, moving the request from prior to AWAITING_ACCEPTANCE.
func (r *SubstituteRequestRepository) MarkDispatched(ctx context.Context, exec sqlx.ExtContext, id string, prior models.RequestStatus, batch int) error {
	const query = `UPDATE substitute_requests SET status = $1, current_batch = $2, updated_at = $3 WHERE id = $4 AND status = $5 AND current_batch = $6`
	result, err := r.exec(exec).ExecContext(ctx, query, models.RequestStatusAwaitingAcceptance, batch, time.Now().UTC(), id, prior, batch-1)
	if err != nil {
		return fmt.Errorf("mark substitute request dispatched: %w", err)
	}
	return requireAffected(result, "substitute request dispatch")
}

// Assign binds the request to teacherID while it is still awaiting acceptance.
func (r *SubstituteRequestRepository) Assign(ctx context.Context, exec sqlx.ExtContext, id, teacherID string) error {
	const query = `UPDATE substitute_requests SET status = $1, assigned_teacher_id = $2, updated_at = $3 WHERE id = $4 AND status = $5`
	result, err := r.exec(exec).ExecContext(ctx, query, models.RequestStatusAssigned, teacherID, time.Now().UTC(), id, models.RequestStatusAwaitingAcceptance)
	if err != nil {
		return fmt.Errorf("assign substitute request: %w", err)
	}
	return requireAffected(result, "substitute request assignment")
}

// Cancel moves an open request to CANCELLED.
func (r *SubstituteRequestRepository) Cancel(ctx context.Context, exec sqlx.ExtContext, id, reason string) error {
	const query = `UPDATE substitute_requests SET status = $1, cancellation_reason = $2, updated_at = $3 WHERE id = $4 AND status = ANY($5)`
	open := []models.RequestStatus{models.RequestStatusPending, models.RequestStatusAwaitingAcceptance}
	result, err := r.exec(exec).ExecContext(ctx, query, models.RequestStatusCancelled, nullableString(reason), time.Now().UTC(), id, pq.Array(statusStrings(open)))
	if err != nil {
		return fmt.Errorf("cancel substitute request: %w", err)
	}
	return requireAffected(result, "substitute request cancellation")
}

func requireAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func statusStrings(statuses []models.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
