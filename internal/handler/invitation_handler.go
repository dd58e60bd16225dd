package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

type invitationResponder interface {
	Accept(ctx context.Context, requestID, teacherID string) (*models.SubstituteRequest, error)
	Decline(ctx context.Context, requestID, teacherID, note string) (models.DeclineOutcome, error)
}

type invitationWithdrawer interface {
	WithdrawInvitation(ctx context.Context, invitationID string, claims *models.JWTClaims) (*models.Invitation, error)
}

// InvitationHandler lets teachers answer invitations and admins withdraw them.
type InvitationHandler struct {
	ledger   invitationResponder
	requests invitationWithdrawer
}

// NewInvitationHandler builds a new handler.
func NewInvitationHandler(ledger invitationResponder, requests invitationWithdrawer) *InvitationHandler {
	return &InvitationHandler{ledger: ledger, requests: requests}
}

// Accept godoc
// @Summary Accept the caller's invitation for a request
// @Tags Invitations
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "RACE_LOST or ALREADY_RESOLVED"
// @Router /substitute-requests/{id}/accept [post]
func (h *InvitationHandler) Accept(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	req, err := h.ledger.Accept(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Decline godoc
// @Summary Decline the caller's invitation for a request
// @Tags Invitations
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DeclineInvitationRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Router /substitute-requests/{id}/decline [post]
func (h *InvitationHandler) Decline(c *gin.Context) {
	claims, ok := requireCaller(c)
	if !ok {
		return
	}
	var body dto.DeclineInvitationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decline payload"))
			return
		}
	}
	requestID := c.Param("id")
	outcome, err := h.ledger.Decline(c.Request.Context(), requestID, claims.UserID, body.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DeclineInvitationResponse{RequestID: requestID, Outcome: outcome}, nil)
}

// Withdraw godoc
// @Summary Withdraw a single invitation
// @Tags Invitations
// @Produce json
// @Param id path string true "Invitation ID"
// @Success 200 {object} response.Envelope
// @Router /invitations/{id}/withdraw [post]
func (h *InvitationHandler) Withdraw(c *gin.Context) {
	inv, err := h.requests.WithdrawInvitation(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, inv, nil)
}
