package dto

import "github.com/noah-isme/sma-substitute-api/internal/models"

// CreateAvailabilityRequest declares an interval on the caller's calendar.
type CreateAvailabilityRequest struct {
	Date              string                    `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime         string                    `json:"start_time" validate:"required,datetime=15:04"`
	EndTime           string                    `json:"end_time" validate:"required"`
	Status            models.AvailabilityStatus `json:"status" validate:"omitempty,oneof=AVAILABLE BUSY TENTATIVE"`
	IsRecurring       bool                      `json:"is_recurring"`
	RecurrencePattern models.RecurrencePattern  `json:"recurrence_pattern" validate:"required_if=IsRecurring true,omitempty,oneof=DAILY WEEKLY MONTHLY"`
	RecurrenceEndDate string                    `json:"recurrence_end_date" validate:"required_if=IsRecurring true,omitempty,datetime=2006-01-02"`
	Notes             string                    `json:"notes" validate:"max=500"`
}

// AvailabilityQuery filters the caller's calendar listing.
type AvailabilityQuery struct {
	From   string `form:"from"`
	To     string `form:"to"`
	Status string `form:"status"`
}
