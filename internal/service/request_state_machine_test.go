package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type statusWriterStub struct {
	err   error
	calls int
}

func (s *statusWriterStub) CompareAndSetStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.RequestStatus, next models.RequestStatus) error {
	s.calls++
	return s.err
}

func TestValidateTransitionTable(t *testing.T) {
	legal := map[models.RequestStatus][]models.RequestStatus{
		models.RequestStatusPending:            {models.RequestStatusAwaitingAcceptance, models.RequestStatusNoTeachersAvailable, models.RequestStatusCancelled},
		models.RequestStatusAwaitingAcceptance: {models.RequestStatusAssigned, models.RequestStatusNoTeachersAvailable, models.RequestStatusCancelled},
		models.RequestStatusAssigned:           {models.RequestStatusCompleted},
	}
	all := []models.RequestStatus{
		models.RequestStatusPending, models.RequestStatusAwaitingAcceptance, models.RequestStatusAssigned,
		models.RequestStatusNoTeachersAvailable, models.RequestStatusCancelled, models.RequestStatusCompleted,
	}

	for _, from := range all {
		for _, to := range all {
			allowed := false
			for _, next := range legal[from] {
				if next == to {
					allowed = true
				}
			}
			err := ValidateTransition(from, to)
			if allowed {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition), "%s -> %s", from, to)
			}
		}
	}
}

func TestRequestStateMachineTransition(t *testing.T) {
	world := newMemoryWorld()
	id := world.seedRequest(mathRequest())
	machine := NewRequestStateMachine(memRequests{world}, nil)
	ctx := context.Background()

	require.NoError(t, machine.Transition(ctx, nil, id, models.RequestStatusPending, models.RequestStatusAwaitingAcceptance))
	assert.Equal(t, models.RequestStatusAwaitingAcceptance, world.request(id).Status)

	err := machine.Transition(ctx, nil, id, models.RequestStatusPending, models.RequestStatusCancelled)
	assert.True(t, errors.Is(err, errStaleState))
	assert.Equal(t, models.RequestStatusAwaitingAcceptance, world.request(id).Status)

	err = machine.Transition(ctx, nil, id, models.RequestStatusAwaitingAcceptance, models.RequestStatusCompleted)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Equal(t, models.RequestStatusAwaitingAcceptance, world.request(id).Status)
}

func TestRequestStateMachineSkipsWriteOnIllegalEdge(t *testing.T) {
	writer := &statusWriterStub{}
	machine := NewRequestStateMachine(writer, nil)

	err := machine.Transition(context.Background(), nil, "req-1", models.RequestStatusCancelled, models.RequestStatusPending)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.Zero(t, writer.calls)

	writer.err = errors.New("deadlock detected")
	err = machine.Transition(context.Background(), nil, "req-1", models.RequestStatusPending, models.RequestStatusCancelled)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Equal(t, 1, writer.calls)
}
