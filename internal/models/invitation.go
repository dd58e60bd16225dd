package models

import "time"

// InvitationStatus enumerates invitation states.
type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "PENDING"
	InvitationStatusAccepted  InvitationStatus = "ACCEPTED"
	InvitationStatusDeclined  InvitationStatus = "DECLINED"
	InvitationStatusWithdrawn InvitationStatus = "WITHDRAWN"
	InvitationStatusExpired   InvitationStatus = "EXPIRED"
)

// Invitation is an offer of a request to one teacher.
type Invitation struct {
	ID           string           `db:"id" json:"id"`
	RequestID    string           `db:"request_id" json:"request_id"`
	TeacherID    string           `db:"teacher_id" json:"teacher_id"`
	Status       InvitationStatus `db:"status" json:"status"`
	BatchNumber  int              `db:"batch_number" json:"batch_number"`
	InvitedAt    time.Time        `db:"invited_at" json:"invited_at"`
	RespondedAt  *time.Time       `db:"responded_at" json:"responded_at,omitempty"`
	ResponseNote string           `db:"response_note" json:"response_note,omitempty"`
}

// InvitationHistoryEntry joins an invitation with the invited teacher's name for reporting.
type InvitationHistoryEntry struct {
	Invitation
	TeacherName  string `db:"teacher_name" json:"teacher_name"`
	TeacherEmail string `db:"teacher_email" json:"teacher_email"`
}

// DeclineOutcome reports what a decline call actually did.
type DeclineOutcome string

const (
	DeclineOutcomeDeclined        DeclineOutcome = "DECLINED"
	DeclineOutcomeAlreadyResolved DeclineOutcome = "ALREADY_RESOLVED"
)
