package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/pkg/database"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// maxRecurrenceOccurrences bounds how many rows one recurring declaration may expand into.
const maxRecurrenceOccurrences = 366

type availabilityStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, avail *models.TeacherAvailability) error
	FindOverlapping(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, window models.TimeWindow, status models.AvailabilityStatus) ([]models.TeacherAvailability, error)
	List(ctx context.Context, filter models.AvailabilityFilter) ([]models.TeacherAvailability, error)
}

// AvailabilityService manages teachers' calendars.
type AvailabilityService struct {
	repo      availabilityStore
	tx        database.TxBeginner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService constructs the service.
func NewAvailabilityService(repo availabilityStore, tx database.TxBeginner, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AvailabilityService{repo: repo, tx: tx, validator: validate, logger: logger}
}

// Create declares an interval on the caller's calendar. Recurring declarations are expanded into one
// row per occurrence; the whole set is rejected if any occurrence overlaps an interval of the same status.
func (s *AvailabilityService) Create(ctx context.Context, req dto.CreateAvailabilityRequest, claims *models.JWTClaims) ([]models.TeacherAvailability, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers manage their availability")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
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
	window := models.TimeWindow{Start: start, End: end}
	if !window.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	status := req.Status
	if status == "" {
		status = models.AvailabilityAvailable
	}

	template := models.TeacherAvailability{
		TeacherID: claims.UserID,
		StartTime: start,
		EndTime:   end,
		Status:    status,
		Notes:     strings.TrimSpace(req.Notes),
	}
	dates := []time.Time{date}
	if req.IsRecurring {
		until, err := time.Parse("2006-01-02", req.RecurrenceEndDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence_end_date must use YYYY-MM-DD")
		}
		dates, err = ExpandRecurrence(date, req.RecurrencePattern, until)
		if err != nil {
			return nil, err
		}
		pattern := req.RecurrencePattern
		template.IsRecurring = true
		template.RecurrencePattern = &pattern
		template.RecurrenceEndDate = &until
	}

	created := make([]models.TeacherAvailability, 0, len(dates))
	err = database.WithTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		for _, day := range dates {
			overlapping, err := s.repo.FindOverlapping(ctx, tx, claims.UserID, day, window, status)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check overlapping availability")
			}
			if len(overlapping) > 0 {
				return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("interval overlaps an existing %s interval on %s", status, day.Format("2006-01-02")))
			}
			row := template
			row.Date = day
			if err := s.repo.Create(ctx, tx, &row); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store availability")
			}
			created = append(created, row)
		}
		return nil
	})
	if err != nil {
		return nil, normalizeTxError(err, "failed to store availability")
	}

	s.logger.Sugar().Infow("availability declared", "teacher_id", claims.UserID, "status", status, "occurrences", len(created))
	return created, nil
}

// List returns the caller's intervals in the requested date range.
func (s *AvailabilityService) List(ctx context.Context, query dto.AvailabilityQuery, claims *models.JWTClaims) ([]models.TeacherAvailability, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.AvailabilityFilter{TeacherID: claims.UserID}
	if query.From != "" {
		from, err := time.Parse("2006-01-02", query.From)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "from must use YYYY-MM-DD")
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := time.Parse("2006-01-02", query.To)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "to must use YYYY-MM-DD")
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	if query.Status != "" {
		status := models.AvailabilityStatus(strings.ToUpper(query.Status))
		switch status {
		case models.AvailabilityAvailable, models.AvailabilityBusy, models.AvailabilityTentative:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status "+query.Status)
		}
		filter.Status = &status
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability")
	}
	return items, nil
}

// ExpandRecurrence lists the dates from start through until (inclusive) on which pattern repeats.
func ExpandRecurrence(start time.Time, pattern models.RecurrencePattern, until time.Time) ([]time.Time, error) {
	var freq rrule.Frequency
	switch pattern {
	case models.RecurrenceDaily:
		freq = rrule.DAILY
	case models.RecurrenceWeekly:
		freq = rrule.WEEKLY
	case models.RecurrenceMonthly:
		freq = rrule.MONTHLY
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported recurrence pattern %q", pattern))
	}

	start = truncateDate(start)
	until = truncateDate(until)
	if until.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "recurrence_end_date must not be before date")
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    freq,
		Dtstart: start,
		Until:   until,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence")
	}

	dates := make([]time.Time, 0, 8)
	next := rule.Iterator()
	for {
		day, ok := next()
		if !ok {
			break
		}
		if len(dates) == maxRecurrenceOccurrences {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("recurrence expands to more than %d occurrences", maxRecurrenceOccurrences))
		}
		dates = append(dates, day)
	}
	return dates, nil
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
