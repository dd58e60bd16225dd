package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/models"
)

type matchingConfigServiceMock struct {
	resolved  string
	updateReq *dto.UpdateMatchingConfigRequest
}

func (m *matchingConfigServiceMock) Resolve(ctx context.Context, schoolID string) (models.MatchingConfig, error) {
	m.resolved = schoolID
	return models.MatchingConfig{BatchSize: 10, WaitTimeMinutes: 15}, nil
}

func (m *matchingConfigServiceMock) Update(ctx context.Context, schoolID string, req dto.UpdateMatchingConfigRequest) (models.MatchingConfig, error) {
	m.updateReq = &req
	cfg := models.MatchingConfig{BatchSize: 10, WaitTimeMinutes: 15}
	if req.BatchSize != nil {
		cfg.BatchSize = *req.BatchSize
	}
	return cfg, nil
}

func schoolContext(w *httptest.ResponseRecorder, method, schoolID, body string, claims *models.JWTClaims) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(method, "/schools/"+schoolID+"/matching-config", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: schoolID}}
	c.Set(middleware.ContextUserKey, claims)
	return c
}

func TestMatchingConfigHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &matchingConfigServiceMock{}
	handler := NewMatchingConfigHandler(mockSvc)

	w := httptest.NewRecorder()
	handler.Get(schoolContext(w, http.MethodGet, "school-1", "", &models.JWTClaims{UserID: "admin-1", Role: models.RoleSchoolAdmin, SchoolID: "school-1"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "school-1", mockSvc.resolved)
}

func TestMatchingConfigHandlerRejectsOtherSchool(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &matchingConfigServiceMock{}
	handler := NewMatchingConfigHandler(mockSvc)

	w := httptest.NewRecorder()
	handler.Get(schoolContext(w, http.MethodGet, "school-2", "", &models.JWTClaims{UserID: "admin-1", Role: models.RoleSchoolAdmin, SchoolID: "school-1"}))
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, mockSvc.resolved)

	w = httptest.NewRecorder()
	handler.Update(schoolContext(w, http.MethodPut, "school-1", `{"batch_size":5}`, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}))
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, mockSvc.updateReq)
}

func TestMatchingConfigHandlerUpdate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &matchingConfigServiceMock{}
	handler := NewMatchingConfigHandler(mockSvc)

	w := httptest.NewRecorder()
	handler.Update(schoolContext(w, http.MethodPut, "school-3", `{"batch_size":5}`, &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin}))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.updateReq)
	assert.Equal(t, 5, *mockSvc.updateReq.BatchSize)
	assert.Contains(t, w.Body.String(), `"batch_size":5`)

	w = httptest.NewRecorder()
	handler.Update(schoolContext(w, http.MethodPut, "school-3", `{"batch_size":"five"}`, &models.JWTClaims{UserID: "root", Role: models.RoleSuperAdmin}))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
