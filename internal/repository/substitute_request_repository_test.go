package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

var requestRowColumns = []string{"id", "school_id", "requested_by", "subject", "grade", "section", "date", "start_time", "end_time", "status", "priority", "mode", "description", "assigned_teacher_id", "current_batch", "cancellation_reason", "created_at", "updated_at"}

func TestSubstituteRequestRepositoryCreate(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewSubstituteRequestRepository(db)

	mock.ExpectExec("INSERT INTO substitute_requests").
		WithArgs(sqlmock.AnyArg(), "school-1", "admin-1", "Math", "10", "A", sqlmock.AnyArg(), "09:00:00", "10:00:00", "PENDING", "HIGH", "OFFLINE", "", 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := &models.SubstituteRequest{
		SchoolID:    "school-1",
		RequestedBy: "admin-1",
		Subject:     "Math",
		Grade:       "10",
		Section:     "A",
		Date:        time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC),
		StartTime:   models.NewClockTime(9, 0),
		EndTime:     models.NewClockTime(10, 0),
		Priority:    models.PriorityHigh,
		Mode:        models.ModeOffline,
	}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstituteRequestRepositoryFindByID(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewSubstituteRequestRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(requestRowColumns).
		AddRow("req-1", "school-1", "admin-1", "Math", "10", "A", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), "09:00:00", "10:30:00", "AWAITING_ACCEPTANCE", "MEDIUM", "ONLINE", "", nil, 2, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM substitute_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnRows(rows)

	req, err := repo.FindByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusAwaitingAcceptance, req.Status)
	assert.Equal(t, models.NewClockTime(10, 30), req.EndTime)
	assert.Equal(t, 2, req.CurrentBatch)
	assert.Nil(t, req.AssignedTeacherID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstituteRequestRepositoryListAwaiting(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewSubstituteRequestRepository(db)

	updated := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(requestRowColumns).
		AddRow("req-1", "school-1", "admin-1", "Math", "10", "A", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), "09:00:00", "10:00:00", "AWAITING_ACCEPTANCE", "HIGH", "OFFLINE", "", nil, 1, nil, updated, updated).
		AddRow("req-2", "school-2", "admin-2", "Physics", "11", "B", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), "11:00:00", "12:00:00", "AWAITING_ACCEPTANCE", "LOW", "ONLINE", "", nil, 3, nil, updated, updated.Add(time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM substitute_requests WHERE status = $1 ORDER BY updated_at, id")).
		WithArgs("AWAITING_ACCEPTANCE").
		WillReturnRows(rows)

	requests, err := repo.ListAwaiting(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, "req-1", requests[0].ID)
	assert.Equal(t, 3, requests[1].CurrentBatch)
	assert.Equal(t, updated.Add(time.Minute), requests[1].UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstituteRequestRepositoryLockByIDUsesRowLock(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewSubstituteRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM substitute_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(requestRowColumns))

	_, err := repo.LockByID(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstituteRequestRepositoryCompareAndSetStatus(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewSubstituteRequestRepository(db)

	query := regexp.QuoteMeta("UPDATE substitute_requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = ANY($4)")
	mock.ExpectExec(query).
		WithArgs("NO_TEACHERS_AVAILABLE", sqlmock.AnyArg(), "req-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("NO_TEACHERS_AVAILABLE", sqlmock.AnyArg(), "req-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	from := []models.RequestStatus{models.RequestStatusAwaitingAcceptance}
	require.NoError(t, repo.CompareAndSetStatus(context.Background(), nil, "req-1", from, models.RequestStatusNoTeachersAvailable))
	err := repo.CompareAndSetStatus(context.Background(), nil, "req-1", from, models.RequestStatusNoTeachersAvailable)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstituteRequestRepositoryMarkDispatchedChecksBatch(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewSubstituteRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE substitute_requests SET status = $1, current_batch = $2, updated_at = $3 WHERE id = $4 AND status = $5 AND current_batch = $6")).
		WithArgs("AWAITING_ACCEPTANCE", 3, sqlmock.AnyArg(), "req-1", "AWAITING_ACCEPTANCE", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkDispatched(context.Background(), nil, "req-1", models.RequestStatusAwaitingAcceptance, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstituteRequestRepositoryAssignLost(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewSubstituteRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE substitute_requests SET status = $1, assigned_teacher_id = $2")).
		WithArgs("ASSIGNED", "teacher-2", sqlmock.AnyArg(), "req-1", "AWAITING_ACCEPTANCE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Assign(context.Background(), nil, "req-1", "teacher-2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstituteRequestRepositoryCancel(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewSubstituteRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE substitute_requests SET status = $1, cancellation_reason = $2")).
		WithArgs("CANCELLED", "teacher returned", sqlmock.AnyArg(), "req-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Cancel(context.Background(), nil, "req-1", "teacher returned"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstituteRequestRepositoryList(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewSubstituteRequestRepository(db)

	status := models.RequestStatusAssigned
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM substitute_requests WHERE school_id = $1 AND status = $2")).
		WithArgs("school-1", "ASSIGNED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY date DESC, start_time DESC, id LIMIT $3 OFFSET $4")).
		WithArgs("school-1", "ASSIGNED", 20, 0).
		WillReturnRows(sqlmock.NewRows(requestRowColumns).
			AddRow("req-1", "school-1", "admin-1", "Math", "10", "A", now, "09:00:00", "10:00:00", "ASSIGNED", "LOW", "OFFLINE", "", "teacher-1", 1, nil, now, now))

	list, total, err := repo.List(context.Background(), models.SubstituteRequestFilter{SchoolID: "school-1", Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].AssignedTeacherID)
	assert.Equal(t, "teacher-1", *list[0].AssignedTeacherID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
