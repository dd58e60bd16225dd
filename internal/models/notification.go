package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationType enumerates notification categories.
type NotificationType string

const (
	NotificationInvitation   NotificationType = "INVITATION"
	NotificationAssignment   NotificationType = "ASSIGNMENT"
	NotificationCancellation NotificationType = "CANCELLATION"
)

// DeliveryStatus tracks whether the realtime fan-out succeeded.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// Notification is a persisted message for a user.
type Notification struct {
	ID             string           `db:"id" json:"id"`
	UserID         string           `db:"user_id" json:"user_id"`
	Type           NotificationType `db:"type" json:"type"`
	Content        string           `db:"content" json:"content"`
	Payload        types.JSONText   `db:"payload" json:"payload"`
	DeliveryStatus DeliveryStatus   `db:"delivery_status" json:"delivery_status"`
	DeliveryError  *string          `db:"delivery_error" json:"delivery_error,omitempty"`
	IsRead         bool             `db:"is_read" json:"is_read"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}
