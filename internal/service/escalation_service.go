package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/pkg/database"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/jobs"
)

const (
	// JobTypeEscalationCheck identifies deferred escalation checks on the job queue.
	JobTypeEscalationCheck = "escalation_check"
	// JobTypeEscalationStart identifies retried first waves on the job queue.
	JobTypeEscalationStart = "escalation_start"
)

const startRetryDelay = 15 * time.Second

type escalationRequestStore interface {
	FindByID(ctx context.Context, id string) (*models.SubstituteRequest, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SubstituteRequest, error)
	MarkDispatched(ctx context.Context, exec sqlx.ExtContext, id string, prior models.RequestStatus, batch int) error
	ListAwaiting(ctx context.Context) ([]models.SubstituteRequest, error)
}

type matchingConfigResolver interface {
	Resolve(ctx context.Context, schoolID string) (models.MatchingConfig, error)
}

type candidateRanker interface {
	Rank(ctx context.Context, req models.SubstituteRequest, cfg models.MatchingConfig) ([]models.RankedCandidate, error)
}

type invitationDispatcher interface {
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, requestID string, teacherIDs []string, batch int) ([]models.Invitation, error)
	InvitedTeacherIDs(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]string, error)
	ExpirePending(ctx context.Context, exec sqlx.ExtContext, requestID string) (int64, error)
}

type invitationNotifier interface {
	NotifyInvitation(ctx context.Context, event models.InvitationEvent) error
}

// CheckScheduler defers escalation work.
type CheckScheduler interface {
	ScheduleCheck(check models.EscalationCheck) error
	ScheduleStart(requestID string) error
}

// EscalationService dispatches invitations in waves until someone accepts or candidates run out.
type EscalationService struct {
	requests  escalationRequestStore
	configs   matchingConfigResolver
	ranker    candidateRanker
	ledger    invitationDispatcher
	state     *RequestStateMachine
	tx        database.TxBeginner
	notifier  invitationNotifier
	scheduler CheckScheduler
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewEscalationService wires the scheduler.
func NewEscalationService(
	requests escalationRequestStore,
	configs matchingConfigResolver,
	ranker candidateRanker,
	ledger invitationDispatcher,
	state *RequestStateMachine,
	tx database.TxBeginner,
	notifier invitationNotifier,
	scheduler CheckScheduler,
	metrics *MetricsService,
	logger *zap.Logger,
) *EscalationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		requests:  requests,
		configs:   configs,
		ranker:    ranker,
		ledger:    ledger,
		state:     state,
		tx:        tx,
		notifier:  notifier,
		scheduler: scheduler,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// SetScheduler attaches the check scheduler once the job queue exists.
func (s *EscalationService) SetScheduler(scheduler CheckScheduler) {
	s.scheduler = scheduler
}

// Start dispatches the first wave for a PENDING request. A configuration error leaves the request PENDING.
func (s *EscalationService) Start(ctx context.Context, requestID string) error {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "substitute request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitute request")
	}
	if req.Status != models.RequestStatusPending {
		s.logger.Sugar().Warnw("escalation start rejected", "request_id", requestID, "status", req.Status)
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("escalation can only start from %s, request is %s", models.RequestStatusPending, req.Status))
	}

	cfg, err := s.configs.Resolve(ctx, req.SchoolID)
	if err != nil {
		return err
	}
	ranked, err := s.ranker.Rank(ctx, *req, cfg)
	if err != nil {
		return err
	}

	batch := nextBatch(ranked, nil, cfg.BatchSize)
	if len(batch) == 0 {
		if err := s.state.Transition(ctx, nil, req.ID, models.RequestStatusPending, models.RequestStatusNoTeachersAvailable); err != nil {
			if errors.Is(err, errStaleState) {
				return appErrors.Clone(appErrors.ErrConflict, "request changed while starting escalation")
			}
			return err
		}
		s.metrics.RecordEscalationWave(OutcomeExhausted, 0)
		s.logger.Sugar().Infow("no eligible teachers", "request_id", req.ID, "school_id", req.SchoolID)
		return nil
	}

	if err := s.dispatch(ctx, req, models.RequestStatusPending, 1, batch, cfg); err != nil {
		if errors.Is(err, errStaleState) {
			return appErrors.Clone(appErrors.ErrConflict, "request changed while starting escalation")
		}
		return err
	}
	return nil
}

// HandleCheck runs a deferred check. Stale or duplicate checks are dropped without effect.
func (s *EscalationService) HandleCheck(ctx context.Context, check models.EscalationCheck) error {
	req, err := s.requests.FindByID(ctx, check.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Warnw("escalation check for unknown request", "request_id", check.RequestID)
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitute request")
	}
	if req.Status != models.RequestStatusAwaitingAcceptance || req.CurrentBatch != check.BatchNumber {
		s.metrics.RecordEscalationWave(OutcomeStale, 0)
		s.logger.Sugar().Debugw("dropping stale escalation check", "request_id", req.ID, "status", req.Status, "current_batch", req.CurrentBatch, "check_batch", check.BatchNumber)
		return nil
	}

	cfg, err := s.configs.Resolve(ctx, req.SchoolID)
	if err != nil {
		if errors.Is(err, appErrors.ErrConfiguration) {
			// the same batch is checked again once an admin repairs the document
			s.logger.Sugar().Errorw("escalation paused by configuration", "request_id", req.ID, "school_id", req.SchoolID, "error", err)
			retry := check
			retry.RunAfterSeconds = int(DefaultMatchingConfig().WaitDuration() / time.Second)
			return s.schedule(retry)
		}
		return err
	}
	ranked, err := s.ranker.Rank(ctx, *req, cfg)
	if err != nil {
		return err
	}
	invited, err := s.ledger.InvitedTeacherIDs(ctx, nil, req.ID)
	if err != nil {
		return err
	}

	batch := nextBatch(ranked, invited, cfg.BatchSize)
	if len(batch) == 0 {
		err = s.exhaust(ctx, req.ID, check.BatchNumber)
	} else {
		err = s.dispatch(ctx, req, models.RequestStatusAwaitingAcceptance, check.BatchNumber+1, batch, cfg)
	}
	if errors.Is(err, errStaleState) {
		s.metrics.RecordEscalationWave(OutcomeStale, 0)
		s.logger.Sugar().Debugw("escalation check lost to a concurrent update", "request_id", req.ID, "check_batch", check.BatchNumber)
		return nil
	}
	return err
}

// RetryStart queues another attempt at the first wave of a PENDING request.
func (s *EscalationService) RetryStart(requestID string) error {
	if s.scheduler == nil {
		return appErrors.Clone(appErrors.ErrInternal, "no escalation scheduler configured")
	}
	if err := s.scheduler.ScheduleStart(requestID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule escalation start")
	}
	s.logger.Sugar().Infow("escalation start retry scheduled", "request_id", requestID)
	return nil
}

// Resume schedules the pending check of every request still awaiting acceptance. It recovers checks
// lost with a restarted process or a failed schedule; checks already queued keep their slot.
func (s *EscalationService) Resume(ctx context.Context) (int, error) {
	if s.scheduler == nil {
		return 0, appErrors.Clone(appErrors.ErrInternal, "no escalation scheduler configured")
	}
	awaiting, err := s.requests.ListAwaiting(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list awaiting requests")
	}

	waits := map[string]time.Duration{}
	scheduled := 0
	for _, req := range awaiting {
		wait, ok := waits[req.SchoolID]
		if !ok {
			wait = s.waitFor(ctx, req.SchoolID)
			waits[req.SchoolID] = wait
		}
		remaining := req.UpdatedAt.Add(wait).Sub(s.now())
		if remaining < 0 {
			remaining = 0
		}
		check := models.EscalationCheck{
			RequestID:       req.ID,
			BatchNumber:     req.CurrentBatch,
			RunAfterSeconds: int(remaining / time.Second),
		}
		if err := s.scheduler.ScheduleCheck(check); err != nil {
			s.logger.Sugar().Errorw("failed to resume escalation check", "request_id", req.ID, "batch", req.CurrentBatch, "error", err)
			continue
		}
		scheduled++
	}
	s.logger.Sugar().Infow("escalation checks resumed", "awaiting", len(awaiting), "scheduled", scheduled)
	return scheduled, nil
}

// Sweep runs Resume every interval until ctx is cancelled.
func (s *EscalationService) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Resume(ctx); err != nil {
				s.logger.Sugar().Warnw("escalation sweep failed", "error", err)
			}
		}
	}
}

func (s *EscalationService) waitFor(ctx context.Context, schoolID string) time.Duration {
	cfg, err := s.configs.Resolve(ctx, schoolID)
	if err != nil {
		s.logger.Sugar().Warnw("using default wait for resumed checks", "school_id", schoolID, "error", err)
		return DefaultMatchingConfig().WaitDuration()
	}
	return cfg.WaitDuration()
}

// HandleJob adapts HandleCheck and retried starts to the job queue.
func (s *EscalationService) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.Type == JobTypeEscalationStart {
		requestID, _ := job.Payload.(string)
		return s.handleStart(ctx, requestID)
	}

	var check models.EscalationCheck
	switch payload := job.Payload.(type) {
	case models.EscalationCheck:
		check = payload
	case *models.EscalationCheck:
		if payload == nil {
			return nil
		}
		check = *payload
	default:
		s.logger.Sugar().Errorw("unexpected escalation job payload", "job_id", job.ID, "type", fmt.Sprintf("%T", job.Payload))
		return nil
	}
	return s.HandleCheck(ctx, check)
}

// handleStart returns an error only when another attempt could succeed, so the queue retries it.
func (s *EscalationService) handleStart(ctx context.Context, requestID string) error {
	if requestID == "" {
		return nil
	}
	err := s.Start(ctx, requestID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, appErrors.ErrInvalidTransition), errors.Is(err, appErrors.ErrNotFound), errors.Is(err, appErrors.ErrConflict):
		s.logger.Sugar().Debugw("escalation start no longer needed", "request_id", requestID, "reason", err)
		return nil
	case errors.Is(err, appErrors.ErrConfiguration):
		s.logger.Sugar().Errorw("escalation start blocked by configuration", "request_id", requestID, "error", err)
		return nil
	default:
		return err
	}
}

// dispatch creates wave `batch` and moves the request from prior to AWAITING_ACCEPTANCE in one
// transaction, then emits the invitations and schedules the follow-up check.
func (s *EscalationService) dispatch(ctx context.Context, req *models.SubstituteRequest, prior models.RequestStatus, batch int, teacherIDs []string, cfg models.MatchingConfig) error {
	var created []models.Invitation
	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		locked, err := s.requests.LockByID(ctx, tx, req.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock substitute request")
		}
		if locked.Status != prior || locked.CurrentBatch != batch-1 {
			return errStaleState
		}
		if prior != models.RequestStatusAwaitingAcceptance {
			if err := ValidateTransition(prior, models.RequestStatusAwaitingAcceptance); err != nil {
				return err
			}
		}

		created, err = s.ledger.CreateBatch(ctx, tx, req.ID, teacherIDs, batch)
		if err != nil {
			return err
		}
		if len(created) == 0 {
			return errStaleState
		}
		if err := s.requests.MarkDispatched(ctx, tx, req.ID, prior, batch); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errStaleState
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record dispatched batch")
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStaleState) {
			s.metrics.RecordEscalationWave(OutcomeError, 0)
		}
		return normalizeTxError(err, "failed to dispatch invitations")
	}

	s.metrics.RecordEscalationWave(OutcomeDispatched, len(created))
	s.logger.Sugar().Infow("invitations dispatched", "request_id", req.ID, "batch", batch, "invitations", len(created))

	for _, inv := range created {
		event := models.InvitationEvent{
			InvitationID: inv.ID,
			RequestID:    req.ID,
			TeacherID:    inv.TeacherID,
			SchoolID:     req.SchoolID,
			Subject:      req.Subject,
			Date:         req.Date,
			StartTime:    req.StartTime,
			EndTime:      req.EndTime,
			BatchNumber:  batch,
		}
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.NotifyInvitation(ctx, event); err != nil {
			s.logger.Sugar().Warnw("invitation notification failed", "request_id", req.ID, "teacher_id", inv.TeacherID, "error", err)
		}
	}

	return s.schedule(models.EscalationCheck{
		RequestID:       req.ID,
		BatchNumber:     batch,
		RunAfterSeconds: int(cfg.WaitDuration() / time.Second),
	})
}

// schedule queues check. On failure the request stays AWAITING_ACCEPTANCE for Resume to pick up.
func (s *EscalationService) schedule(check models.EscalationCheck) error {
	if s.scheduler == nil {
		s.logger.Sugar().Errorw("no scheduler configured, escalation check not queued", "request_id", check.RequestID, "batch", check.BatchNumber)
		return appErrors.Clone(appErrors.ErrInternal, "no escalation scheduler configured")
	}
	if err := s.scheduler.ScheduleCheck(check); err != nil {
		s.logger.Sugar().Errorw("failed to schedule escalation check", "request_id", check.RequestID, "batch", check.BatchNumber, "error", err)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invitations sent but the follow-up check was not scheduled")
	}
	return nil
}

// exhaust closes a request whose candidates ran out and expires the invitations nobody answered.
func (s *EscalationService) exhaust(ctx context.Context, requestID string, batch int) error {
	var expired int64
	err := database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		locked, err := s.requests.LockByID(ctx, tx, requestID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock substitute request")
		}
		if locked.Status != models.RequestStatusAwaitingAcceptance || locked.CurrentBatch != batch {
			return errStaleState
		}
		if err := s.state.Transition(ctx, tx, requestID, models.RequestStatusAwaitingAcceptance, models.RequestStatusNoTeachersAvailable); err != nil {
			return err
		}
		expired, err = s.ledger.ExpirePending(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return normalizeTxError(err, "failed to close exhausted request")
	}
	s.metrics.RecordEscalationWave(OutcomeExhausted, 0)
	s.logger.Sugar().Infow("candidates exhausted", "request_id", requestID, "last_batch", batch, "expired_invitations", expired)
	return nil
}

// QueueCheckScheduler schedules escalation checks on an in-process job queue.
type QueueCheckScheduler struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewQueueCheckScheduler wraps queue.
func NewQueueCheckScheduler(queue *jobs.Queue, logger *zap.Logger) *QueueCheckScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueCheckScheduler{queue: queue, logger: logger}
}

// ScheduleCheck enqueues the check after its delay. A check already pending under the same key is kept.
func (q *QueueCheckScheduler) ScheduleCheck(check models.EscalationCheck) error {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeEscalationCheck,
		Key:     check.Key(),
		Payload: check,
	}
	err := q.queue.Schedule(job, time.Duration(check.RunAfterSeconds)*time.Second)
	if errors.Is(err, jobs.ErrDuplicate) {
		q.logger.Sugar().Debugw("escalation check already scheduled", "key", job.Key)
		return nil
	}
	return err
}

// ScheduleStart enqueues another first-wave attempt for requestID.
func (q *QueueCheckScheduler) ScheduleStart(requestID string) error {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeEscalationStart,
		Key:     "start:" + requestID,
		Payload: requestID,
	}
	err := q.queue.Schedule(job, startRetryDelay)
	if errors.Is(err, jobs.ErrDuplicate) {
		q.logger.Sugar().Debugw("escalation start already scheduled", "key", job.Key)
		return nil
	}
	return err
}
