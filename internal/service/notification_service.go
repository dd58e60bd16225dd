package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkDelivery(ctx context.Context, id string, status models.DeliveryStatus, deliveryErr *string) error
}

// RealtimePublisher pushes a message to connected clients.
type RealtimePublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) (int64, error)
}

// NotificationGateway persists notifications and fans them out over pub/sub. Fan-out failures never
// roll back the state change that produced the notification.
type NotificationGateway struct {
	store     notificationStore
	publisher RealtimePublisher
	metrics   *MetricsService
	prefix    string
	logger    *zap.Logger
}

// NewNotificationGateway constructs the gateway. prefix namespaces the per-user channels.
func NewNotificationGateway(store notificationStore, publisher RealtimePublisher, metrics *MetricsService, prefix string, logger *zap.Logger) *NotificationGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "substitute"
	}
	return &NotificationGateway{store: store, publisher: publisher, metrics: metrics, prefix: prefix, logger: logger}
}

// UserChannel returns the pub/sub channel for a user.
func (g *NotificationGateway) UserChannel(userID string) string {
	return fmt.Sprintf("%s:user:%s", g.prefix, userID)
}

// NotifyInvitation tells a teacher they were invited to cover a class.
func (g *NotificationGateway) NotifyInvitation(ctx context.Context, event models.InvitationEvent) error {
	content := fmt.Sprintf("You are invited to cover %s on %s from %s to %s",
		event.Subject, event.Date.Format("2006-01-02"), event.StartTime, event.EndTime)
	return g.deliver(ctx, event.TeacherID, models.NotificationInvitation, content, event)
}

// NotifyAssignment informs the assigned teacher and the requester.
func (g *NotificationGateway) NotifyAssignment(ctx context.Context, event models.AssignmentEvent) error {
	day := event.Date.Format("2006-01-02")
	teacherMsg := fmt.Sprintf("You are assigned to cover %s on %s from %s to %s", event.Subject, day, event.StartTime, event.EndTime)
	requesterMsg := fmt.Sprintf("A substitute accepted your %s class on %s", event.Subject, day)

	var failed []string
	if err := g.deliver(ctx, event.TeacherID, models.NotificationAssignment, teacherMsg, event); err != nil {
		failed = append(failed, event.TeacherID)
	}
	if event.RequestedBy != "" && event.RequestedBy != event.TeacherID {
		if err := g.deliver(ctx, event.RequestedBy, models.NotificationAssignment, requesterMsg, event); err != nil {
			failed = append(failed, event.RequestedBy)
		}
	}
	if len(failed) > 0 {
		return appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("assignment notification failed for %s", strings.Join(failed, ",")))
	}
	return nil
}

// NotifyCancellation tells invited teachers that a request was cancelled.
func (g *NotificationGateway) NotifyCancellation(ctx context.Context, req models.SubstituteRequest, teacherIDs []string) error {
	content := fmt.Sprintf("The %s class on %s no longer needs a substitute", req.Subject, req.Date.Format("2006-01-02"))
	payload := map[string]interface{}{
		"request_id": req.ID,
		"school_id":  req.SchoolID,
		"reason":     req.CancellationReason,
	}

	var lastErr error
	for _, teacherID := range teacherIDs {
		if err := g.deliver(ctx, teacherID, models.NotificationCancellation, content, payload); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (g *NotificationGateway) deliver(ctx context.Context, userID string, kind models.NotificationType, content string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode notification payload")
	}
	notification := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Content: content,
		Payload: types.JSONText(raw),
	}
	if err := g.store.Create(ctx, notification); err != nil {
		g.metrics.RecordDeliveryFailure()
		g.logger.Error("failed to persist notification", zap.String("user_id", userID), zap.String("type", string(kind)), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification")
	}

	status := models.DeliverySent
	var deliveryErr *string
	var publishErr error
	if g.publisher == nil {
		publishErr = fmt.Errorf("realtime publisher not configured")
	} else {
		_, publishErr = g.publisher.Publish(ctx, g.UserChannel(userID), notification)
	}
	if publishErr != nil {
		status = models.DeliveryFailed
		msg := publishErr.Error()
		deliveryErr = &msg
		g.metrics.RecordDeliveryFailure()
		g.logger.Warn("realtime delivery failed", zap.String("user_id", userID), zap.String("notification_id", notification.ID), zap.Error(publishErr))
	}

	if err := g.store.MarkDelivery(ctx, notification.ID, status, deliveryErr); err != nil {
		g.logger.Error("failed to record delivery status", zap.String("notification_id", notification.ID), zap.Error(err))
	}
	if publishErr != nil {
		return appErrors.Wrap(publishErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "realtime delivery failed")
	}
	return nil
}
