package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/logger"
)

type validatorStub struct {
	claims *models.JWTClaims
	token  string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.token = token
	if v.claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type observerStub struct {
	path   string
	status int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.path = path
	o.status = status
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		actor, _ := c.Get(logger.ActorKey)
		c.JSON(http.StatusOK, gin.H{"actor": actor})
	})
	r.GET("/protected", handlers...)
	return r
}

func TestJWTRejectsMissingOrMalformedHeader(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}}
	router := newRouter(JWT(stub))

	for _, header := range []string{"", "Token abc", "Bearer   "} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
	assert.Empty(t, stub.token)
}

func TestJWTStoresClaimsAndActor(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}}
	router := newRouter(JWT(stub))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "bearer signed.token.value")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "signed.token.value", stub.token)
	assert.Contains(t, w.Body.String(), `"actor":"t1"`)
}

func TestJWTInvalidToken(t *testing.T) {
	router := newRouter(JWT(&validatorStub{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer forged")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoles(t *testing.T) {
	setClaims := func(claims *models.JWTClaims) gin.HandlerFunc {
		return func(c *gin.Context) {
			if claims != nil {
				c.Set(ContextUserKey, claims)
			}
		}
	}

	cases := []struct {
		name   string
		claims *models.JWTClaims
		status int
	}{
		{"admin allowed", &models.JWTClaims{UserID: "a", Role: models.RoleSchoolAdmin}, http.StatusOK},
		{"superadmin allowed", &models.JWTClaims{UserID: "s", Role: models.RoleSuperAdmin}, http.StatusOK},
		{"teacher forbidden", &models.JWTClaims{UserID: "t", Role: models.RoleTeacher}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(setClaims(tc.claims), RequireRoles(models.RoleSchoolAdmin, models.RoleSuperAdmin))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestMetricsObservesRoutePattern(t *testing.T) {
	observer := &observerStub{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	assert.Equal(t, "/items/:id", observer.path)
	assert.Equal(t, http.StatusAccepted, observer.status)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, "unmatched", observer.path)
	assert.Equal(t, http.StatusNotFound, observer.status)
}

