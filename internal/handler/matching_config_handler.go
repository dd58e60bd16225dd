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

type matchingConfigService interface {
	Resolve(ctx context.Context, schoolID string) (models.MatchingConfig, error)
	Update(ctx context.Context, schoolID string, req dto.UpdateMatchingConfigRequest) (models.MatchingConfig, error)
}

// MatchingConfigHandler manages per-school matching settings.
type MatchingConfigHandler struct {
	service matchingConfigService
}

// NewMatchingConfigHandler builds a new handler.
func NewMatchingConfigHandler(service matchingConfigService) *MatchingConfigHandler {
	return &MatchingConfigHandler{service: service}
}

// Get godoc
// @Summary Effective matching settings of a school
// @Tags MatchingConfig
// @Produce json
// @Param id path string true "School ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /schools/{id}/matching-config [get]
func (h *MatchingConfigHandler) Get(c *gin.Context) {
	schoolID := c.Param("id")
	if err := authorizeSchool(claimsFromContext(c), schoolID); err != nil {
		response.Error(c, err)
		return
	}
	cfg, err := h.service.Resolve(c.Request.Context(), schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Update godoc
// @Summary Override matching settings of a school
// @Tags MatchingConfig
// @Accept json
// @Produce json
// @Param id path string true "School ID"
// @Param payload body dto.UpdateMatchingConfigRequest true "Partial settings"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schools/{id}/matching-config [put]
func (h *MatchingConfigHandler) Update(c *gin.Context) {
	schoolID := c.Param("id")
	if err := authorizeSchool(claimsFromContext(c), schoolID); err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateMatchingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid matching config payload"))
		return
	}
	cfg, err := h.service.Update(c.Request.Context(), schoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

func authorizeSchool(claims *models.JWTClaims, schoolID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleSuperAdmin {
		return nil
	}
	if claims.Role == models.RoleSchoolAdmin && claims.SchoolID == schoolID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "settings belong to another school")
}
