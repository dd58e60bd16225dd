package dto

import "github.com/noah-isme/sma-substitute-api/internal/models"

// CreateSubstituteRequest is the payload a school admin submits for a vacant slot.
type CreateSubstituteRequest struct {
	SchoolID    string                 `json:"school_id" validate:"omitempty,max=64"`
	Subject     string                 `json:"subject" validate:"required,max=100"`
	Grade       string                 `json:"grade" validate:"required,max=20"`
	Section     string                 `json:"section" validate:"omitempty,max=10"`
	Date        string                 `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string                 `json:"start_time" validate:"required,datetime=15:04"`
	EndTime     string                 `json:"end_time" validate:"required"`
	Priority    models.RequestPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Mode        models.TeachingMode    `json:"mode" validate:"omitempty,oneof=ONLINE OFFLINE HYBRID"`
	Description string                 `json:"description" validate:"max=2000"`
}

// CancelSubstituteRequest carries the optional cancellation reason.
type CancelSubstituteRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// DeclineInvitationRequest carries the teacher's optional note.
type DeclineInvitationRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// DeclineInvitationResponse reports whether the decline took effect.
type DeclineInvitationResponse struct {
	RequestID string                `json:"request_id"`
	Outcome   models.DeclineOutcome `json:"outcome"`
}

// SubstituteRequestQuery mirrors supported listing filters.
type SubstituteRequestQuery struct {
	Status   string `form:"status"`
	Date     string `form:"date"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// InvitationHistoryQuery selects the representation of the invitation history.
type InvitationHistoryQuery struct {
	Format string `form:"format"`
}
