package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/pkg/database"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type ledgerRequestStore interface {
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SubstituteRequest, error)
	Assign(ctx context.Context, exec sqlx.ExtContext, id, teacherID string) error
}

type ledgerInvitationStore interface {
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, requestID string, teacherIDs []string, batch int) ([]models.Invitation, error)
	FindByID(ctx context.Context, id string) (*models.Invitation, error)
	FindForTeacher(ctx context.Context, exec sqlx.ExtContext, requestID, teacherID string) (*models.Invitation, error)
	ListByRequest(ctx context.Context, requestID string) ([]models.Invitation, error)
	InvitedTeacherIDs(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]string, error)
	History(ctx context.Context, requestID string) ([]models.InvitationHistoryEntry, error)
	Respond(ctx context.Context, exec sqlx.ExtContext, id string, next models.InvitationStatus, note string) error
	ResolvePending(ctx context.Context, exec sqlx.ExtContext, requestID, exceptID string, next models.InvitationStatus) ([]string, error)
}

type ledgerAvailabilityStore interface {
	LockContaining(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, window models.TimeWindow) (*models.TeacherAvailability, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	Create(ctx context.Context, exec sqlx.ExtContext, avail *models.TeacherAvailability) error
}

type assignmentNotifier interface {
	NotifyAssignment(ctx context.Context, event models.AssignmentEvent) error
}

// SessionScheduler creates the teaching session for an assignment.
type SessionScheduler interface {
	ScheduleSession(ctx context.Context, event models.AssignmentEvent) error
}

// InvitationLedger records invitations and resolves teacher responses. Accept is the only path to ASSIGNED.
type InvitationLedger struct {
	requests     ledgerRequestStore
	invitations  ledgerInvitationStore
	availability ledgerAvailabilityStore
	tx           database.TxBeginner
	notifier     assignmentNotifier
	sessions     SessionScheduler
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewInvitationLedger wires the ledger.
func NewInvitationLedger(
	requests ledgerRequestStore,
	invitations ledgerInvitationStore,
	availability ledgerAvailabilityStore,
	tx database.TxBeginner,
	notifier assignmentNotifier,
	sessions SessionScheduler,
	metrics *MetricsService,
	logger *zap.Logger,
) *InvitationLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationLedger{
		requests:     requests,
		invitations:  invitations,
		availability: availability,
		tx:           tx,
		notifier:     notifier,
		sessions:     sessions,
		metrics:      metrics,
		logger:       logger,
	}
}

// CreateBatch inserts PENDING invitations and returns only the newly created ones.
func (l *InvitationLedger) CreateBatch(ctx context.Context, exec sqlx.ExtContext, requestID string, teacherIDs []string, batch int) ([]models.Invitation, error) {
	if len(teacherIDs) == 0 {
		return nil, nil
	}
	created, err := l.invitations.CreateBatch(ctx, exec, requestID, teacherIDs, batch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invitations")
	}
	return created, nil
}

// InvitedTeacherIDs lists every teacher already invited to the request, whatever the invitation status.
func (l *InvitationLedger) InvitedTeacherIDs(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]string, error) {
	ids, err := l.invitations.InvitedTeacherIDs(ctx, exec, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invited teachers")
	}
	return ids, nil
}

// ExpirePending marks still-pending invitations EXPIRED.
func (l *InvitationLedger) ExpirePending(ctx context.Context, exec sqlx.ExtContext, requestID string) (int64, error) {
	teacherIDs, err := l.invitations.ResolvePending(ctx, exec, requestID, "", models.InvitationStatusExpired)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire invitations")
	}
	return int64(len(teacherIDs)), nil
}

// WithdrawPending marks still-pending invitations WITHDRAWN and returns the affected teachers.
func (l *InvitationLedger) WithdrawPending(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]string, error) {
	teacherIDs, err := l.invitations.ResolvePending(ctx, exec, requestID, "", models.InvitationStatusWithdrawn)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw invitations")
	}
	return teacherIDs, nil
}

// List returns the invitations of a request.
func (l *InvitationLedger) List(ctx context.Context, requestID string) ([]models.Invitation, error) {
	invitations, err := l.invitations.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invitations")
	}
	return invitations, nil
}

// History returns the invitations of a request with teacher names.
func (l *InvitationLedger) History(ctx context.Context, requestID string) ([]models.InvitationHistoryEntry, error) {
	entries, err := l.invitations.History(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation history")
	}
	return entries, nil
}

// Accept assigns the request to teacherID. The request status, the invitation, the other pending
// invitations and the teacher's calendar change in a single transaction.
func (l *InvitationLedger) Accept(ctx context.Context, requestID, teacherID string) (*models.SubstituteRequest, error) {
	var (
		assigned *models.SubstituteRequest
		event    models.AssignmentEvent
		withdrew []string
	)

	err := database.WithTx(ctx, l.tx, func(tx *sqlx.Tx) error {
		req, err := l.requests.LockByID(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "substitute request not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitute request")
		}

		inv, err := l.invitations.FindForTeacher(ctx, tx, requestID, teacherID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrForbidden, "teacher was not invited to this request")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
		}

		if req.Status != models.RequestStatusAwaitingAcceptance {
			return resolvedRequestError(req, teacherID)
		}
		if inv.Status != models.InvitationStatusPending {
			return appErrors.Clone(appErrors.ErrAlreadyResolved, "invitation is no longer pending")
		}

		if err := l.requests.Assign(ctx, tx, requestID, teacherID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrRaceLost, "request was filled by another teacher")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign request")
		}
		if err := l.invitations.Respond(ctx, tx, inv.ID, models.InvitationStatusAccepted, ""); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrAlreadyResolved, "invitation is no longer pending")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept invitation")
		}
		if withdrew, err = l.invitations.ResolvePending(ctx, tx, requestID, inv.ID, models.InvitationStatusWithdrawn); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw other invitations")
		}
		if err := l.blockCalendar(ctx, tx, req, teacherID); err != nil {
			return err
		}

		req.Status = models.RequestStatusAssigned
		req.AssignedTeacherID = &teacherID
		assigned = req
		event = models.AssignmentEvent{
			RequestID:    req.ID,
			InvitationID: inv.ID,
			TeacherID:    teacherID,
			SchoolID:     req.SchoolID,
			RequestedBy:  req.RequestedBy,
			Subject:      req.Subject,
			Date:         req.Date,
			StartTime:    req.StartTime,
			EndTime:      req.EndTime,
			Mode:         req.Mode,
		}
		return nil
	})
	if err != nil {
		l.metrics.RecordAcceptAttempt(acceptOutcome(err))
		l.logger.Sugar().Infow("accept rejected", "request_id", requestID, "teacher_id", teacherID, "error", err)
		return nil, normalizeTxError(err, "failed to accept invitation")
	}

	l.metrics.RecordAcceptAttempt(OutcomeAssigned)
	l.logger.Sugar().Infow("request assigned", "request_id", requestID, "teacher_id", teacherID, "withdrawn", len(withdrew))
	l.emitAssignment(ctx, event)
	return assigned, nil
}

// blockCalendar replaces the teacher's containing AVAILABLE interval by its split segments.
func (l *InvitationLedger) blockCalendar(ctx context.Context, tx sqlx.ExtContext, req *models.SubstituteRequest, teacherID string) error {
	avail, err := l.availability.LockContaining(ctx, tx, teacherID, req.Date, req.Window())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "teacher is no longer available for this slot")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock availability")
	}
	segments, err := SplitAvailability(*avail, req.Window())
	if err != nil {
		return err
	}
	if err := l.availability.Delete(ctx, tx, avail.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove availability")
	}
	for i := range segments {
		if err := l.availability.Create(ctx, tx, &segments[i]); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store availability segment")
		}
	}
	return nil
}

func (l *InvitationLedger) emitAssignment(ctx context.Context, event models.AssignmentEvent) {
	if l.notifier != nil {
		if err := l.notifier.NotifyAssignment(ctx, event); err != nil {
			l.logger.Sugar().Warnw("assignment notification failed", "request_id", event.RequestID, "error", err)
		}
	}
	if l.sessions != nil {
		if err := l.sessions.ScheduleSession(ctx, event); err != nil {
			l.logger.Sugar().Errorw("failed to schedule teaching session", "request_id", event.RequestID, "teacher_id", event.TeacherID, "error", err)
		}
	}
}

// Decline records a teacher's refusal. Once the request is resolved the call is a no-op reported as ALREADY_RESOLVED.
func (l *InvitationLedger) Decline(ctx context.Context, requestID, teacherID, note string) (models.DeclineOutcome, error) {
	outcome := models.DeclineOutcomeDeclined
	err := database.WithTx(ctx, l.tx, func(tx *sqlx.Tx) error {
		req, err := l.requests.LockByID(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "substitute request not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitute request")
		}
		inv, err := l.invitations.FindForTeacher(ctx, tx, requestID, teacherID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrForbidden, "teacher was not invited to this request")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
		}
		if req.Status != models.RequestStatusAwaitingAcceptance || inv.Status != models.InvitationStatusPending {
			outcome = models.DeclineOutcomeAlreadyResolved
			return nil
		}
		if err := l.invitations.Respond(ctx, tx, inv.ID, models.InvitationStatusDeclined, note); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				outcome = models.DeclineOutcomeAlreadyResolved
				return nil
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decline invitation")
		}
		return nil
	})
	if err != nil {
		return "", normalizeTxError(err, "failed to decline invitation")
	}
	l.logger.Sugar().Infow("invitation declined", "request_id", requestID, "teacher_id", teacherID, "outcome", outcome)
	return outcome, nil
}

// Withdraw retracts a single invitation. Withdrawing a resolved invitation succeeds without effect.
func (l *InvitationLedger) Withdraw(ctx context.Context, invitationID string) (*models.Invitation, error) {
	inv, err := l.invitations.FindByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}
	if inv.Status != models.InvitationStatusPending {
		return inv, nil
	}
	if err := l.invitations.Respond(ctx, nil, inv.ID, models.InvitationStatusWithdrawn, ""); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return l.reload(ctx, inv)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw invitation")
	}
	inv.Status = models.InvitationStatusWithdrawn
	l.logger.Sugar().Infow("invitation withdrawn", "invitation_id", inv.ID, "request_id", inv.RequestID)
	return inv, nil
}

func (l *InvitationLedger) reload(ctx context.Context, inv *models.Invitation) (*models.Invitation, error) {
	fresh, err := l.invitations.FindByID(ctx, inv.ID)
	if err != nil {
		return inv, nil
	}
	return fresh, nil
}

// resolvedRequestError classifies an accept against a request that is no longer awaiting acceptance.
func resolvedRequestError(req *models.SubstituteRequest, teacherID string) error {
	switch req.Status {
	case models.RequestStatusAssigned, models.RequestStatusCompleted:
		if req.AssignedTeacherID != nil && *req.AssignedTeacherID == teacherID {
			return appErrors.Clone(appErrors.ErrAlreadyResolved, "request is already assigned to you")
		}
		return appErrors.Clone(appErrors.ErrRaceLost, "request was filled by another teacher")
	default:
		return appErrors.Clone(appErrors.ErrAlreadyResolved, "request is "+string(req.Status))
	}
}

func acceptOutcome(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrRaceLost):
		return OutcomeRaceLost
	case errors.Is(err, appErrors.ErrAlreadyResolved):
		return OutcomeAlreadyResolved
	default:
		return OutcomeError
	}
}

// normalizeTxError keeps typed errors from inside a transaction and wraps driver failures.
func normalizeTxError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
