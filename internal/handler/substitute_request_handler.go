package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

type substituteRequestService interface {
	Create(ctx context.Context, req dto.CreateSubstituteRequest, claims *models.JWTClaims) (*models.SubstituteRequest, error)
	StartEscalation(ctx context.Context, id string, claims *models.JWTClaims) (*models.SubstituteRequest, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.SubstituteRequest, error)
	List(ctx context.Context, query dto.SubstituteRequestQuery, schoolID string, claims *models.JWTClaims) ([]models.SubstituteRequest, *models.Pagination, error)
	Cancel(ctx context.Context, id string, body dto.CancelSubstituteRequest, claims *models.JWTClaims) (*models.SubstituteRequest, error)
	Complete(ctx context.Context, id string, claims *models.JWTClaims) (*models.SubstituteRequest, error)
	History(ctx context.Context, id string, claims *models.JWTClaims) ([]models.InvitationHistoryEntry, error)
	ExportHistory(ctx context.Context, id, format string, claims *models.JWTClaims) (*service.ExportedFile, error)
}

// SubstituteRequestHandler exposes the substitute request lifecycle endpoints.
type SubstituteRequestHandler struct {
	service substituteRequestService
}

// NewSubstituteRequestHandler builds a new handler.
func NewSubstituteRequestHandler(service substituteRequestService) *SubstituteRequestHandler {
	return &SubstituteRequestHandler{service: service}
}

// Create godoc
// @Summary Open a substitute request and start matching
// @Tags SubstituteRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubstituteRequest true "Substitute request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /substitute-requests [post]
func (h *SubstituteRequestHandler) Create(c *gin.Context) {
	var req dto.CreateSubstituteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid substitute request payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List substitute requests for a school
// @Tags SubstituteRequests
// @Produce json
// @Param school_id query string false "School (superadmin only)"
// @Param status query string false "Status filter"
// @Param date query string false "Date filter (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /substitute-requests [get]
func (h *SubstituteRequestHandler) List(c *gin.Context) {
	var query dto.SubstituteRequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query, c.Query("school_id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a substitute request
// @Tags SubstituteRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /substitute-requests/{id} [get]
func (h *SubstituteRequestHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Start godoc
// @Summary Retry escalation for a request still pending
// @Tags SubstituteRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /substitute-requests/{id}/start [post]
func (h *SubstituteRequestHandler) Start(c *gin.Context) {
	item, err := h.service.StartEscalation(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Cancel godoc
// @Summary Cancel a substitute request
// @Tags SubstituteRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.CancelSubstituteRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /substitute-requests/{id}/cancel [post]
func (h *SubstituteRequestHandler) Cancel(c *gin.Context) {
	var body dto.CancelSubstituteRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancellation payload"))
			return
		}
	}
	item, err := h.service.Cancel(c.Request.Context(), c.Param("id"), body, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Complete godoc
// @Summary Mark an assigned request as completed
// @Tags SubstituteRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /substitute-requests/{id}/complete [post]
func (h *SubstituteRequestHandler) Complete(c *gin.Context) {
	item, err := h.service.Complete(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// History godoc
// @Summary Invitation history of a request
// @Description Returns JSON by default; format=csv or format=pdf downloads the history as a document.
// @Tags SubstituteRequests
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Param format query string false "csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /substitute-requests/{id}/invitations [get]
func (h *SubstituteRequestHandler) History(c *gin.Context) {
	var query dto.InvitationHistoryQuery
	_ = c.ShouldBindQuery(&query)
	format := strings.TrimSpace(query.Format)
	if format == "" || strings.EqualFold(format, "json") {
		entries, err := h.service.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, entries, nil)
		return
	}
	file, err := h.service.ExportHistory(c.Request.Context(), c.Param("id"), format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}
