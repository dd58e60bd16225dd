package models

import (
	"strconv"
	"time"
)

// InvitationEvent is emitted once per invitation created by a dispatch.
type InvitationEvent struct {
	InvitationID string    `json:"invitation_id"`
	RequestID    string    `json:"request_id"`
	TeacherID    string    `json:"teacher_id"`
	SchoolID     string    `json:"school_id"`
	Subject      string    `json:"subject"`
	Date         time.Time `json:"date"`
	StartTime    ClockTime `json:"start_time"`
	EndTime      ClockTime `json:"end_time"`
	BatchNumber  int       `json:"batch_number"`
}

// AssignmentEvent is emitted after an accept commits.
type AssignmentEvent struct {
	RequestID    string       `json:"request_id"`
	InvitationID string       `json:"invitation_id"`
	TeacherID    string       `json:"teacher_id"`
	SchoolID     string       `json:"school_id"`
	RequestedBy  string       `json:"requested_by"`
	Subject      string       `json:"subject"`
	Date         time.Time    `json:"date"`
	StartTime    ClockTime    `json:"start_time"`
	EndTime      ClockTime    `json:"end_time"`
	Mode         TeachingMode `json:"mode"`
}

// EscalationCheck is the payload of a deferred escalation job.
type EscalationCheck struct {
	RequestID       string `json:"request_id"`
	BatchNumber     int    `json:"batch_number"`
	RunAfterSeconds int    `json:"run_after_seconds"`
}

// Key is the idempotency key for the check.
func (c EscalationCheck) Key() string {
	return c.RequestID + ":" + strconv.Itoa(c.BatchNumber)
}
