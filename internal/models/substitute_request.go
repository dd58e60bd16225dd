package models

import "time"

// RequestStatus enumerates the lifecycle states of a substitute request.
type RequestStatus string

const (
	RequestStatusPending             RequestStatus = "PENDING"
	RequestStatusAwaitingAcceptance  RequestStatus = "AWAITING_ACCEPTANCE"
	RequestStatusAssigned            RequestStatus = "ASSIGNED"
	RequestStatusNoTeachersAvailable RequestStatus = "NO_TEACHERS_AVAILABLE"
	RequestStatusCancelled           RequestStatus = "CANCELLED"
	RequestStatusCompleted           RequestStatus = "COMPLETED"
)

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending: {
		RequestStatusAwaitingAcceptance,
		RequestStatusNoTeachersAvailable,
		RequestStatusCancelled,
	},
	RequestStatusAwaitingAcceptance: {
		RequestStatusAssigned,
		RequestStatusNoTeachersAvailable,
		RequestStatusCancelled,
	},
	RequestStatusAssigned: {
		RequestStatusCompleted,
	},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range requestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Open reports whether the request can still be assigned or cancelled.
func (s RequestStatus) Open() bool {
	return s == RequestStatusPending || s == RequestStatusAwaitingAcceptance
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusAwaitingAcceptance, RequestStatusAssigned,
		RequestStatusNoTeachersAvailable, RequestStatusCancelled, RequestStatusCompleted:
		return true
	}
	return false
}

// RequestPriority ranks the urgency of a request.
type RequestPriority string

const (
	PriorityLow    RequestPriority = "LOW"
	PriorityMedium RequestPriority = "MEDIUM"
	PriorityHigh   RequestPriority = "HIGH"
	PriorityUrgent RequestPriority = "URGENT"
)

// TeachingMode describes how the substitute delivers the class.
type TeachingMode string

const (
	ModeOnline  TeachingMode = "ONLINE"
	ModeOffline TeachingMode = "OFFLINE"
	ModeHybrid  TeachingMode = "HYBRID"
)

// SubstituteRequest is a vacant class slot a school needs covered.
type SubstituteRequest struct {
	ID                 string          `db:"id" json:"id"`
	SchoolID           string          `db:"school_id" json:"school_id"`
	RequestedBy        string          `db:"requested_by" json:"requested_by"`
	Subject            string          `db:"subject" json:"subject"`
	Grade              string          `db:"grade" json:"grade"`
	Section            string          `db:"section" json:"section"`
	Date               time.Time       `db:"date" json:"date"`
	StartTime          ClockTime       `db:"start_time" json:"start_time"`
	EndTime            ClockTime       `db:"end_time" json:"end_time"`
	Status             RequestStatus   `db:"status" json:"status"`
	Priority           RequestPriority `db:"priority" json:"priority"`
	Mode               TeachingMode    `db:"mode" json:"mode"`
	Description        string          `db:"description" json:"description"`
	AssignedTeacherID  *string         `db:"assigned_teacher_id" json:"assigned_teacher_id,omitempty"`
	CurrentBatch       int             `db:"current_batch" json:"current_batch"`
	CancellationReason *string         `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// Window returns the class slot as a time window.
func (r SubstituteRequest) Window() TimeWindow {
	return TimeWindow{Start: r.StartTime, End: r.EndTime}
}

// SubstituteRequestFilter captures list filters for a school's requests.
type SubstituteRequestFilter struct {
	SchoolID string
	Status   *RequestStatus
	Date     *time.Time
	Page     int
	PageSize int
}
