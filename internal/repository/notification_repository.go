package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// NotificationRepository persists user notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification in PENDING delivery state.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return fmt.Errorf("notification payload is nil")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.DeliveryStatus == "" {
		n.DeliveryStatus = models.DeliveryPending
	}
	if len(n.Payload) == 0 {
		n.Payload = types.JSONText(`{}`)
	}
	n.CreatedAt = time.Now().UTC()

	const query = `
INSERT INTO notifications (id, user_id, type, content, payload, delivery_status, is_read, created_at)
VALUES (:id, :user_id, :type, :content, :payload, :delivery_status, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// MarkDelivery records the outcome of the realtime fan-out.
func (r *NotificationRepository) MarkDelivery(ctx context.Context, id string, status models.DeliveryStatus, deliveryErr *string) error {
	const query = `UPDATE notifications SET delivery_status = $1, delivery_error = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, deliveryErr, id)
	if err != nil {
		return fmt.Errorf("mark notification delivery: %w", err)
	}
	return requireAffected(result, "notification delivery")
}
