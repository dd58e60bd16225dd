package models

import "time"

// AvailabilityStatus enumerates teacher calendar interval states.
type AvailabilityStatus string

const (
	AvailabilityAvailable AvailabilityStatus = "AVAILABLE"
	AvailabilityBusy      AvailabilityStatus = "BUSY"
	AvailabilityTentative AvailabilityStatus = "TENTATIVE"
)

// RecurrencePattern describes how a recurring interval repeats.
type RecurrencePattern string

const (
	RecurrenceDaily   RecurrencePattern = "DAILY"
	RecurrenceWeekly  RecurrencePattern = "WEEKLY"
	RecurrenceMonthly RecurrencePattern = "MONTHLY"
)

// TeacherAvailability is one interval on a teacher's calendar.
type TeacherAvailability struct {
	ID                string             `db:"id" json:"id"`
	TeacherID         string             `db:"teacher_id" json:"teacher_id"`
	Date              time.Time          `db:"date" json:"date"`
	StartTime         ClockTime          `db:"start_time" json:"start_time"`
	EndTime           ClockTime          `db:"end_time" json:"end_time"`
	Status            AvailabilityStatus `db:"status" json:"status"`
	IsRecurring       bool               `db:"is_recurring" json:"is_recurring"`
	RecurrencePattern *RecurrencePattern `db:"recurrence_pattern" json:"recurrence_pattern,omitempty"`
	RecurrenceEndDate *time.Time         `db:"recurrence_end_date" json:"recurrence_end_date,omitempty"`
	Notes             string             `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`
}

// Window returns the interval as a time window.
func (a TeacherAvailability) Window() TimeWindow {
	return TimeWindow{Start: a.StartTime, End: a.EndTime}
}

// AvailabilityFilter narrows availability listings.
type AvailabilityFilter struct {
	TeacherID string
	From      *time.Time
	To        *time.Time
	Status    *AvailabilityStatus
}
