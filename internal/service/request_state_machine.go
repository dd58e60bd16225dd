package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// errStaleState is returned when a conditional status write finds the request in another state.
var errStaleState = appErrors.New("STALE_STATE", http.StatusConflict, "request state changed concurrently")

type requestStatusWriter interface {
	CompareAndSetStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.RequestStatus, next models.RequestStatus) error
}

// ValidateTransition reports InvalidTransition for edges outside the request lifecycle.
func ValidateTransition(from, to models.RequestStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move request from %s to %s", from, to))
}

// RequestStateMachine applies lifecycle transitions as compare-and-set writes.
type RequestStateMachine struct {
	repo   requestStatusWriter
	logger *zap.Logger
}

// NewRequestStateMachine constructs the state machine.
func NewRequestStateMachine(repo requestStatusWriter, logger *zap.Logger) *RequestStateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestStateMachine{repo: repo, logger: logger}
}

// Transition moves request id from `from` to `to`. An illegal edge leaves the row untouched and returns
// InvalidTransition; a lost compare-and-set returns errStaleState.
func (m *RequestStateMachine) Transition(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.RequestStatus) error {
	if err := ValidateTransition(from, to); err != nil {
		m.logger.Sugar().Warnw("rejected request transition", "request_id", id, "from", from, "to", to)
		return err
	}
	if err := m.repo.CompareAndSetStatus(ctx, exec, id, []models.RequestStatus{from}, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errStaleState
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request status")
	}
	m.logger.Sugar().Infow("request transitioned", "request_id", id, "from", from, "to", to)
	return nil
}
