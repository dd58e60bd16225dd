package models

import "time"

// SessionStatus enumerates teaching session states.
type SessionStatus string

const (
	SessionScheduled  SessionStatus = "SCHEDULED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionCancelled  SessionStatus = "CANCELLED"
)

// TeachingSession is the class a substitute was assigned to deliver.
type TeachingSession struct {
	ID        string        `db:"id" json:"id"`
	RequestID string        `db:"request_id" json:"request_id"`
	TeacherID string        `db:"teacher_id" json:"teacher_id"`
	Date      time.Time     `db:"date" json:"date"`
	StartTime ClockTime     `db:"start_time" json:"start_time"`
	EndTime   ClockTime     `db:"end_time" json:"end_time"`
	Mode      TeachingMode  `db:"mode" json:"mode"`
	Status    SessionStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}
