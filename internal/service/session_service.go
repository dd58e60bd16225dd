package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.TeachingSession) error
}

// SessionService books the class an assigned substitute will teach.
type SessionService struct {
	store  sessionStore
	logger *zap.Logger
}

// NewSessionService constructs the service.
func NewSessionService(store sessionStore, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{store: store, logger: logger}
}

// ScheduleSession records a SCHEDULED session for the assignment. Repeated events for the same request are no-ops.
func (s *SessionService) ScheduleSession(ctx context.Context, event models.AssignmentEvent) error {
	mode := event.Mode
	if mode == "" {
		mode = models.ModeOffline
	}
	session := &models.TeachingSession{
		RequestID: event.RequestID,
		TeacherID: event.TeacherID,
		Date:      event.Date,
		StartTime: event.StartTime,
		EndTime:   event.EndTime,
		Mode:      mode,
		Status:    models.SessionScheduled,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule teaching session")
	}
	s.logger.Info("teaching session scheduled", zap.String("request_id", event.RequestID), zap.String("teacher_id", event.TeacherID))
	return nil
}
