package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-billing-api/api/swagger"
	"github.com/noah-isme/sma-billing-api/internal/handler"
	"github.com/noah-isme/sma-billing-api/internal/repository"
	"github.com/noah-isme/sma-billing-api/internal/service"
	"github.com/noah-isme/sma-billing-api/pkg/cache"
	"github.com/noah-isme/sma-billing-api/pkg/config"
	"github.com/noah-isme/sma-billing-api/pkg/database"
	"github.com/noah-isme/sma-billing-api/pkg/logger"
	"github.com/noah-isme/sma-billing-api/pkg/mailer"
)

// @title SMA Billing API
// @version 1.0.0
// @description Installment ledger, payment allocation and approval workflows
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, ledger cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	location, err := cfg.Reminders.Location()
	if err != nil {
		logr.Warn("falling back to UTC for reminders", zap.Error(err))
	}

	store := repository.NewStore(db)
	uow := service.NewSQLUnitOfWork(store)
	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Billing.SummaryCacheTTL, logr, redisClient != nil)

	notifications := service.NewNotificationService(
		newNotifier(cfg, logr),
		store.Repos().Users,
		metrics,
		logr,
		service.NotificationConfig{
			Enabled: cfg.Notifications.Enabled,
			Workers: cfg.Notifications.Workers,
			Retries: cfg.Notifications.Retries,
		},
	)
	notifications.Start(ctx)
	defer notifications.Stop()

	reminders := service.NewReminderService(uow, metrics, logr, service.ReminderServiceOptions{
		CurrencySymbol: cfg.Billing.CurrencySymbol,
		Location:       location,
	})
	dispatcher := service.NewEventDispatcher(reminders, notifications, uow, logr)
	engine := service.NewWorkflowEngine(service.WorkflowEngineOptions{
		NotificationsEnabled: cfg.Workflow.NotificationsEnabled,
		EmptyApproverPolicy:  service.ParseEmptyApproverPolicy(cfg.Workflow.EmptyApproverPolicy),
	})

	ledgerSvc := service.NewLedgerService(uow, dispatcher, cacheSvc, validate, logr, cfg.Billing.SummaryCacheTTL)
	paymentSvc := service.NewPaymentService(uow, engine, dispatcher, cacheSvc, metrics, validate, logr, service.PaymentServiceOptions{
		OverpaymentPolicy:  service.ParseOverpaymentPolicy(cfg.Billing.OverpaymentPolicy),
		ApprovalWorkflowID: cfg.Billing.ApprovalWorkflowID,
		ApprovalThreshold:  cfg.Billing.ApprovalThreshold,
	})
	workflowSvc := service.NewWorkflowService(uow, engine, dispatcher, metrics, validate, logr)
	approvalSvc := service.NewApprovalService(uow, engine, dispatcher, metrics, logr, service.ApprovalServiceOptions{
		AutoAdvance: cfg.Workflow.AutoAdvance,
	})
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	scheduler := service.NewReminderScheduler(reminders, notifications, logr, service.ReminderSchedulerConfig{
		Enabled:  cfg.Reminders.SweepEnabled,
		Schedule: cfg.Reminders.Schedule,
		Location: location,
	})
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start reminder scheduler: %w", err)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := newRouter(cfg, logr, routerDeps{
		tokens:    tokens,
		audit:     store.Repos().Audit,
		metrics:   metrics,
		billing:   handler.NewBillingHandler(ledgerSvc, paymentSvc, reminders),
		workflows: handler.NewWorkflowHandler(workflowSvc, approvalSvc),
		health:    handler.NewMetricsHandler(metrics.Handler(), checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}

func newNotifier(cfg *config.Config, logr *zap.Logger) service.Notifier {
	mailCfg := mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Sender:   cfg.SMTP.Sender,
	}
	if !mailCfg.Enabled() {
		return service.NewLogNotifier(logr)
	}
	return service.NewMailNotifier(mailer.New(mailCfg, logr))
}
