package service

import (
	"fmt"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// SplitAvailability carves window out of an AVAILABLE interval. The result is, in order, an optional
// AVAILABLE segment before the window, a BUSY segment covering exactly the window, and an optional
// AVAILABLE segment after it. Segments carry no id; the caller persists them.
func SplitAvailability(avail models.TeacherAvailability, window models.TimeWindow) ([]models.TeacherAvailability, error) {
	if !window.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("window %s has no length", window))
	}
	if avail.Status != models.AvailabilityAvailable {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only AVAILABLE intervals can be split")
	}
	if !avail.Window().Contains(window) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("window %s is not inside availability %s", window, avail.Window()))
	}

	segment := func(start, end models.ClockTime, status models.AvailabilityStatus) models.TeacherAvailability {
		return models.TeacherAvailability{
			TeacherID: avail.TeacherID,
			Date:      avail.Date,
			StartTime: start,
			EndTime:   end,
			Status:    status,
			Notes:     avail.Notes,
		}
	}

	segments := make([]models.TeacherAvailability, 0, 3)
	if avail.StartTime < window.Start {
		segments = append(segments, segment(avail.StartTime, window.Start, models.AvailabilityAvailable))
	}
	segments = append(segments, segment(window.Start, window.End, models.AvailabilityBusy))
	if avail.EndTime > window.End {
		segments = append(segments, segment(window.End, avail.EndTime, models.AvailabilityAvailable))
	}
	return segments, nil
}
