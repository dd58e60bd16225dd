package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/pkg/database"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/export"
)

type substituteRequestStore interface {
	Create(ctx context.Context, req *models.SubstituteRequest) error
	FindByID(ctx context.Context, id string) (*models.SubstituteRequest, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SubstituteRequest, error)
	List(ctx context.Context, filter models.SubstituteRequestFilter) ([]models.SubstituteRequest, int, error)
	Cancel(ctx context.Context, exec sqlx.ExtContext, id, reason string) error
}

type requestLedger interface {
	List(ctx context.Context, requestID string) ([]models.Invitation, error)
	History(ctx context.Context, requestID string) ([]models.InvitationHistoryEntry, error)
	WithdrawPending(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]string, error)
	Withdraw(ctx context.Context, invitationID string) (*models.Invitation, error)
}

type invitationFinder interface {
	FindByID(ctx context.Context, id string) (*models.Invitation, error)
}

type requestEscalator interface {
	Start(ctx context.Context, requestID string) error
	RetryStart(requestID string) error
}

type cancellationNotifier interface {
	NotifyCancellation(ctx context.Context, req models.SubstituteRequest, teacherIDs []string) error
}

// ExportedFile is a rendered download.
type ExportedFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// SubstituteRequestService exposes the request lifecycle to handlers and enforces school scoping.
type SubstituteRequestService struct {
	repo        substituteRequestStore
	ledger      requestLedger
	invitations invitationFinder
	escalation  requestEscalator
	state       *RequestStateMachine
	tx          database.TxBeginner
	notifier    cancellationNotifier
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubstituteRequestService constructs the service.
func NewSubstituteRequestService(
	repo substituteRequestStore,
	ledger requestLedger,
	invitations invitationFinder,
	escalation requestEscalator,
	state *RequestStateMachine,
	tx database.TxBeginner,
	notifier cancellationNotifier,
	validate *validator.Validate,
	logger *zap.Logger,
) *SubstituteRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubstituteRequestService{
		repo:        repo,
		ledger:      ledger,
		invitations: invitations,
		escalation:  escalation,
		state:       state,
		tx:          tx,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Create stores a PENDING request and starts its escalation. A failed start leaves the request PENDING
// and is retried through StartEscalation.
func (s *SubstituteRequestService) Create(ctx context.Context, req dto.CreateSubstituteRequest, claims *models.JWTClaims) (*models.SubstituteRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid substitute request payload")
	}

	schoolID := strings.TrimSpace(claims.SchoolID)
	if claims.Role == models.RoleSuperAdmin {
		schoolID = strings.TrimSpace(req.SchoolID)
	} else if req.SchoolID != "" && req.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot create requests for another school")
	}
	if schoolID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}
	start, err := models.ParseClockTime(req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must use HH:MM")
	}
	end, err := models.ParseClockTime(req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must use HH:MM")
	}
	if end <= start {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	mode := req.Mode
	if mode == "" {
		mode = models.ModeOffline
	}

	entity := &models.SubstituteRequest{
		SchoolID:    schoolID,
		RequestedBy: claims.UserID,
		Subject:     strings.TrimSpace(req.Subject),
		Grade:       strings.TrimSpace(req.Grade),
		Section:     strings.TrimSpace(req.Section),
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		Status:      models.RequestStatusPending,
		Priority:    priority,
		Mode:        mode,
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.repo.Create(ctx, entity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create substitute request")
	}
	s.logger.Sugar().Infow("substitute request created", "request_id", entity.ID, "school_id", schoolID, "subject", entity.Subject)

	if err := s.escalation.Start(ctx, entity.ID); err != nil {
		if errors.Is(err, appErrors.ErrConfiguration) {
			// the row stays PENDING; POST /start retries once the config is fixed
			s.logger.Sugar().Warnw("escalation blocked by configuration", "request_id", entity.ID, "error", err)
			return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status,
				fmt.Sprintf("request %s saved as PENDING but escalation cannot start: %s", entity.ID, configurationReason(err)))
		}
		s.logger.Sugar().Warnw("escalation did not start", "request_id", entity.ID, "error", err)
		if retryable(err) {
			if err := s.escalation.RetryStart(entity.ID); err != nil {
				s.logger.Sugar().Errorw("cannot schedule escalation retry", "request_id", entity.ID, "error", err)
			}
		}
	}
	return s.reload(ctx, entity)
}

// retryable reports whether a failed start may succeed later without operator action.
func retryable(err error) bool {
	for _, terminal := range []*appErrors.Error{appErrors.ErrInvalidTransition, appErrors.ErrNotFound, appErrors.ErrConflict, appErrors.ErrValidation} {
		if errors.Is(err, terminal) {
			return false
		}
	}
	return true
}

func configurationReason(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// StartEscalation retries the first wave for a request still PENDING.
func (s *SubstituteRequestService) StartEscalation(ctx context.Context, id string, claims *models.JWTClaims) (*models.SubstituteRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureSchoolAccess(req, claims); err != nil {
		return nil, err
	}
	if err := s.escalation.Start(ctx, id); err != nil {
		return nil, err
	}
	return s.reload(ctx, req)
}

// Get returns one request. Teachers may view requests they were invited to.
func (s *SubstituteRequestService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.SubstituteRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if claims != nil && claims.Role == models.RoleTeacher {
		if err := s.ensureInvited(ctx, req, claims.UserID); err != nil {
			return nil, err
		}
		return req, nil
	}
	if err := ensureSchoolAccess(req, claims); err != nil {
		return nil, err
	}
	return req, nil
}

// List pages through a school's requests.
func (s *SubstituteRequestService) List(ctx context.Context, query dto.SubstituteRequestQuery, schoolID string, claims *models.JWTClaims) ([]models.SubstituteRequest, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleSuperAdmin {
		schoolID = claims.SchoolID
	}
	if strings.TrimSpace(schoolID) == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}

	filter := models.SubstituteRequestFilter{SchoolID: schoolID, Page: query.Page, PageSize: query.PageSize}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if status := strings.ToUpper(strings.TrimSpace(query.Status)); status != "" {
		st := models.RequestStatus(status)
		if !st.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status "+query.Status)
		}
		filter.Status = &st
	}
	if query.Date != "" {
		date, err := time.Parse("2006-01-02", query.Date)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
		}
		filter.Date = &date
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list substitute requests")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Cancel closes an open request and withdraws its pending invitations atomically.
func (s *SubstituteRequestService) Cancel(ctx context.Context, id string, body dto.CancelSubstituteRequest, claims *models.JWTClaims) (*models.SubstituteRequest, error) {
	if err := s.validator.Struct(body); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureSchoolAccess(current, claims); err != nil {
		return nil, err
	}

	var withdrawn []string
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		locked, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock substitute request")
		}
		if err := ValidateTransition(locked.Status, models.RequestStatusCancelled); err != nil {
			return err
		}
		if err := s.repo.Cancel(ctx, tx, id, strings.TrimSpace(body.Reason)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "request changed while cancelling")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel substitute request")
		}
		withdrawn, err = s.ledger.WithdrawPending(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, normalizeTxError(err, "failed to cancel substitute request")
	}
	s.logger.Sugar().Infow("substitute request cancelled", "request_id", id, "withdrawn_invitations", len(withdrawn))

	cancelled, err := s.reload(ctx, current)
	if err != nil {
		return nil, err
	}
	if len(withdrawn) > 0 {
		s.notifyWithdrawn(ctx, *cancelled, withdrawn)
	}
	return cancelled, nil
}

// Complete marks an assigned request as taught.
func (s *SubstituteRequestService) Complete(ctx context.Context, id string, claims *models.JWTClaims) (*models.SubstituteRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureSchoolAccess(req, claims); err != nil {
		return nil, err
	}
	if err := s.state.Transition(ctx, nil, id, req.Status, models.RequestStatusCompleted); err != nil {
		if errors.Is(err, errStaleState) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request changed while completing")
		}
		return nil, err
	}
	return s.reload(ctx, req)
}

// WithdrawInvitation withdraws a single pending invitation on behalf of a school admin.
func (s *SubstituteRequestService) WithdrawInvitation(ctx context.Context, invitationID string, claims *models.JWTClaims) (*models.Invitation, error) {
	inv, err := s.invitations.FindByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}
	req, err := s.load(ctx, inv.RequestID)
	if err != nil {
		return nil, err
	}
	if err := ensureSchoolAccess(req, claims); err != nil {
		return nil, err
	}
	return s.ledger.Withdraw(ctx, invitationID)
}

// History lists every invitation of a request with the invited teacher's name.
func (s *SubstituteRequestService) History(ctx context.Context, id string, claims *models.JWTClaims) ([]models.InvitationHistoryEntry, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureSchoolAccess(req, claims); err != nil {
		return nil, err
	}
	entries, err := s.ledger.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ExportHistory renders the invitation history as CSV or PDF.
func (s *SubstituteRequestService) ExportHistory(ctx context.Context, id, format string, claims *models.JWTClaims) (*ExportedFile, error) {
	var renderer export.Renderer
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		renderer = export.NewCSVExporter()
	case "pdf":
		generatedBy := ""
		if claims != nil {
			generatedBy = claims.FullName
		}
		renderer = export.NewPDFExporter(generatedBy)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	entries, err := s.History(ctx, id, claims)
	if err != nil {
		return nil, err
	}
	body, err := renderer.Render(invitationHistoryDataset(id, entries))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invitation history")
	}
	return &ExportedFile{
		Filename:    fmt.Sprintf("invitations-%s-%s.%s", id, s.now().UTC().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func invitationHistoryDataset(requestID string, entries []models.InvitationHistoryEntry) export.Dataset {
	headers := []string{"Batch", "Teacher", "Email", "Status", "Invited At", "Responded At", "Note"}
	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		responded := ""
		if entry.RespondedAt != nil {
			responded = entry.RespondedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, map[string]string{
			"Batch":        strconv.Itoa(entry.BatchNumber),
			"Teacher":      entry.TeacherName,
			"Email":        entry.TeacherEmail,
			"Status":       string(entry.Status),
			"Invited At":   entry.InvitedAt.UTC().Format(time.RFC3339),
			"Responded At": responded,
			"Note":         entry.ResponseNote,
		})
	}
	return export.Dataset{Title: "Invitation history " + requestID, Headers: headers, Rows: rows}
}

// notifyWithdrawn tells only the teachers whose invitation this cancellation withdrew.
func (s *SubstituteRequestService) notifyWithdrawn(ctx context.Context, req models.SubstituteRequest, teacherIDs []string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyCancellation(ctx, req, teacherIDs); err != nil {
		s.logger.Sugar().Warnw("cancellation notice failed", "request_id", req.ID, "error", err)
	}
}

func (s *SubstituteRequestService) ensureInvited(ctx context.Context, req *models.SubstituteRequest, teacherID string) error {
	if req.AssignedTeacherID != nil && *req.AssignedTeacherID == teacherID {
		return nil
	}
	invitations, err := s.ledger.List(ctx, req.ID)
	if err != nil {
		return err
	}
	for _, inv := range invitations {
		if inv.TeacherID == teacherID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "you were not invited to this request")
}

func (s *SubstituteRequestService) load(ctx context.Context, id string) (*models.SubstituteRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "substitute request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitute request")
	}
	return req, nil
}

func (s *SubstituteRequestService) reload(ctx context.Context, req *models.SubstituteRequest) (*models.SubstituteRequest, error) {
	fresh, err := s.load(ctx, req.ID)
	if err != nil {
		s.logger.Sugar().Warnw("reload after write failed", "request_id", req.ID, "error", err)
		return req, nil
	}
	return fresh, nil
}

func ensureSchoolAccess(req *models.SubstituteRequest, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	switch claims.Role {
	case models.RoleSuperAdmin:
		return nil
	case models.RoleSchoolAdmin:
		if claims.SchoolID != "" && claims.SchoolID == req.SchoolID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another school")
}
