package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/models"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.token = token
	return v.claims, v.err
}

type auditWriterStub struct {
	entries []*models.AuditLog
	err     error
}

func (a *auditWriterStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return a.err
}

type observerStub struct {
	paths    []string
	statuses []int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, path)
	o.statuses = append(o.statuses, status)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func withClaims(claims *models.JWTClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func serve(r *gin.Engine, method, path, auth string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: 7, Role: models.RoleAccounting}}
	r := gin.New()
	r.GET("/me", JWT(stub), func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		require.True(t, ok)
		c.String(http.StatusOK, formatID(claims.UserID))
	})

	w := serve(r, http.MethodGet, "/me", "Bearer abc.def")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", w.Body.String())
	assert.Equal(t, "abc.def", stub.token)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "Bearer ").Code)

	stub.err = appErrors.Clone(appErrors.ErrUnauthorized, "token expired")
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "Bearer abc.def").Code)
}

func TestRequireCapability(t *testing.T) {
	cases := []struct {
		role   models.UserRole
		status int
	}{
		{models.RoleAccounting, http.StatusOK},
		{models.RoleAdmin, http.StatusOK},
		{models.RoleRegistrar, http.StatusForbidden},
		{models.RoleStudent, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			r := gin.New()
			r.POST("/payments", withClaims(&models.JWTClaims{UserID: 1, Role: tc.role}), RequireCapability(models.CapabilityRecordPayments), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})
			assert.Equal(t, tc.status, serve(r, http.MethodPost, "/payments", "").Code)
		})
	}

	r := gin.New()
	r.POST("/payments", RequireCapability(models.CapabilityRecordPayments), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/payments", "").Code)
}

func TestRequireCapabilityOrSelf(t *testing.T) {
	r := gin.New()
	r.GET("/students/:userID/ledger",
		withClaims(&models.JWTClaims{UserID: 42, Role: models.RoleStudent}),
		RequireCapabilityOrSelf(models.CapabilityViewLedger, "userID"),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/students/42/ledger", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/students/43/ledger", "").Code)
}

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	writer := &auditWriterStub{}
	r := gin.New()
	r.Use(withClaims(&models.JWTClaims{UserID: 9, Role: models.RoleAdmin}), Audit(writer, "workflow", zap.NewNop()))
	r.POST("/workflows/:id/advance", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/workflows/:id/fail", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/workflows/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodPost, "/workflows/12/advance", "")
	serve(r, http.MethodPost, "/workflows/12/fail", "")
	serve(r, http.MethodGet, "/workflows/12", "")

	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, models.AuditActionHTTPMutation, entry.Action)
	assert.Equal(t, int64(9), *entry.UserID)
	assert.Equal(t, int64(12), *entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), `"route":"/workflows/:id/advance"`)

	writer.err = errors.New("db down")
	w := serve(r, http.MethodPost, "/workflows/12/advance", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &observerStub{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/payments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/payments/5", "")
	serve(r, http.MethodGet, "/nowhere", "")

	assert.Equal(t, []string{"/payments/:id", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
}
