package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type notificationStoreStub struct {
	created   []*models.Notification
	delivery  map[string]models.DeliveryStatus
	errors    map[string]string
	createErr error
}

func newNotificationStoreStub() *notificationStoreStub {
	return &notificationStoreStub{delivery: map[string]models.DeliveryStatus{}, errors: map[string]string{}}
}

func (s *notificationStoreStub) Create(ctx context.Context, n *models.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	n.ID = "notif-" + n.UserID
	s.created = append(s.created, n)
	return nil
}

func (s *notificationStoreStub) MarkDelivery(ctx context.Context, id string, status models.DeliveryStatus, deliveryErr *string) error {
	s.delivery[id] = status
	if deliveryErr != nil {
		s.errors[id] = *deliveryErr
	}
	return nil
}

type publisherStub struct {
	channels []string
	failFor  map[string]bool
}

func (p *publisherStub) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	if p.failFor[channel] {
		return 0, errors.New("connection refused")
	}
	p.channels = append(p.channels, channel)
	return 1, nil
}

func TestNotificationGatewayInvitation(t *testing.T) {
	store := newNotificationStoreStub()
	publisher := &publisherStub{}
	gateway := NewNotificationGateway(store, publisher, nil, "sub:", nil)

	err := gateway.NotifyInvitation(context.Background(), models.InvitationEvent{
		InvitationID: "inv-1",
		RequestID:    "req-1",
		TeacherID:    "t1",
		Subject:      "Math",
		Date:         testDate,
		StartTime:    clock("10:00"),
		EndTime:      clock("11:00"),
		BatchNumber:  1,
	})
	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, models.NotificationInvitation, store.created[0].Type)
	assert.Contains(t, store.created[0].Content, "Math on 2025-03-10 from 10:00 to 11:00")
	assert.Contains(t, string(store.created[0].Payload), `"invitation_id":"inv-1"`)
	assert.Equal(t, []string{"sub:user:t1"}, publisher.channels)
	assert.Equal(t, models.DeliverySent, store.delivery["notif-t1"])
}

func TestNotificationGatewayAssignmentMarksFailedDelivery(t *testing.T) {
	store := newNotificationStoreStub()
	publisher := &publisherStub{failFor: map[string]bool{"substitute:user:admin-1": true}}
	gateway := NewNotificationGateway(store, publisher, NewMetricsService(), "", nil)

	err := gateway.NotifyAssignment(context.Background(), models.AssignmentEvent{
		RequestID:   "req-1",
		TeacherID:   "t1",
		RequestedBy: "admin-1",
		Subject:     "Math",
		Date:        testDate,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	require.Len(t, store.created, 2)
	assert.Equal(t, models.DeliverySent, store.delivery["notif-t1"])
	assert.Equal(t, models.DeliveryFailed, store.delivery["notif-admin-1"])
	assert.Equal(t, "connection refused", store.errors["notif-admin-1"])
}

func TestNotificationGatewayCancellation(t *testing.T) {
	store := newNotificationStoreStub()
	publisher := &publisherStub{}
	gateway := NewNotificationGateway(store, publisher, nil, "substitute", nil)
	reason := "teacher recovered"

	err := gateway.NotifyCancellation(context.Background(), models.SubstituteRequest{
		ID: "req-1", Subject: "Math", Date: testDate, CancellationReason: &reason,
	}, []string{"t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"substitute:user:t1", "substitute:user:t2"}, publisher.channels)
	assert.Contains(t, string(store.created[0].Payload), "teacher recovered")
}

func TestNotificationGatewayStoreFailure(t *testing.T) {
	store := newNotificationStoreStub()
	store.createErr = errors.New("insert failed")
	publisher := &publisherStub{}
	gateway := NewNotificationGateway(store, publisher, nil, "", nil)

	err := gateway.NotifyInvitation(context.Background(), models.InvitationEvent{TeacherID: "t1"})
	require.Error(t, err)
	assert.Empty(t, publisher.channels)
}
