package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/handler"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/config"
	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

type roleTokens map[string]*models.JWTClaims

func (t roleTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := t[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

type auditSink struct{}

func (auditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

func TestRouterEnforcesCapabilities(t *testing.T) {
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	tokens := roleTokens{
		"student":   {UserID: 42, Role: models.RoleStudent},
		"registrar": {UserID: 8, Role: models.RoleRegistrar},
	}
	r := newRouter(cfg, zap.NewNop(), routerDeps{
		tokens:    tokens,
		audit:     auditSink{},
		billing:   handler.NewBillingHandler(nil, nil, nil),
		workflows: handler.NewWorkflowHandler(nil, nil),
		health:    handler.NewMetricsHandler(nil, nil),
	})

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"docs hidden in production", http.MethodGet, "/docs/index.html", "", http.StatusNotFound},
		{"ledger needs a token", http.MethodGet, "/api/v1/assessments/5/ledger", "", http.StatusUnauthorized},
		{"unknown token", http.MethodGet, "/api/v1/assessments/5/ledger", "forged", http.StatusUnauthorized},
		{"student cannot read ledgers", http.MethodGet, "/api/v1/assessments/5/ledger", "student", http.StatusForbidden},
		{"student cannot post payments", http.MethodPost, "/api/v1/assessments/5/payments", "student", http.StatusForbidden},
		{"registrar cannot post payments", http.MethodPost, "/api/v1/assessments/5/payments", "registrar", http.StatusForbidden},
		{"registrar cannot manage workflows", http.MethodPost, "/api/v1/workflows", "registrar", http.StatusForbidden},
		{"registrar cannot advance", http.MethodPost, "/api/v1/workflow-instances/3/advance", "registrar", http.StatusForbidden},
		{"student cannot approve", http.MethodPost, "/api/v1/workflow-approvals/4/approve", "student", http.StatusForbidden},
		{"metrics unavailable without a registry", http.MethodGet, "/metrics", "", http.StatusServiceUnavailable},
		{"student cannot read payments", http.MethodGet, "/api/v1/payments/11", "student", http.StatusForbidden},
		{"student cannot read other reminders", http.MethodGet, "/api/v1/students/43/reminders", "student", http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
