package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-billing-api/internal/handler"
	"github.com/noah-isme/sma-billing-api/internal/middleware"
	"github.com/noah-isme/sma-billing-api/internal/models"
	"github.com/noah-isme/sma-billing-api/pkg/config"
	"github.com/noah-isme/sma-billing-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-billing-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-billing-api/pkg/middleware/requestid"
)

type routerDeps struct {
	tokens    middleware.TokenValidator
	audit     middleware.AuditWriter
	metrics   middleware.HTTPObserver
	billing   *handler.BillingHandler
	workflows *handler.WorkflowHandler
	health    *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.tokens))

	can := middleware.RequireCapability
	audit := func(resource string) gin.HandlerFunc { return middleware.Audit(deps.audit, resource, logr) }

	assessments := api.Group("/assessments/:id")
	assessments.GET("/ledger", can(models.CapabilityViewLedger), deps.billing.Ledger)
	assessments.GET("/statement.csv", can(models.CapabilityViewLedger), deps.billing.Statement)
	assessments.POST("/terms", can(models.CapabilityManageTerms), audit("payment_terms"), deps.billing.CreateTerms)
	assessments.POST("/payments", can(models.CapabilityRecordPayments), audit("payments"), deps.billing.RecordPayment)

	api.GET("/payments/:id", can(models.CapabilityViewLedger), deps.billing.Payment)
	api.GET("/students/:id/reminders", middleware.RequireCapabilityOrSelf(models.CapabilityViewLedger, "id"), deps.billing.Reminders)

	workflows := api.Group("/workflows", can(models.CapabilityManageWorkflows), audit("workflows"))
	workflows.POST("", deps.workflows.CreateWorkflow)
	workflows.POST("/:id/instances", deps.workflows.StartWorkflow)

	instances := api.Group("/workflow-instances/:id")
	instances.GET("", can(models.CapabilityViewLedger), deps.workflows.GetInstance)
	instances.GET("/approvals", can(models.CapabilityViewLedger), deps.workflows.ListApprovals)
	instances.POST("/advance", can(models.CapabilityManageWorkflows), audit("workflow_instances"), deps.workflows.Advance)

	approvals := api.Group("/workflow-approvals/:id", can(models.CapabilityApprove), audit("workflow_approvals"))
	approvals.POST("/approve", deps.workflows.Approve)
	approvals.POST("/reject", deps.workflows.Reject)

	return r
}
