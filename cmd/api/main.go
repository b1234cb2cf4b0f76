package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/medhaven/clinicflow/internal/cache"
	"github.com/medhaven/clinicflow/internal/config"
	v1 "github.com/medhaven/clinicflow/internal/handler/v1"
	"github.com/medhaven/clinicflow/internal/repository"
	"github.com/medhaven/clinicflow/internal/service"
	"github.com/medhaven/clinicflow/pkg/auth"
	"github.com/medhaven/clinicflow/pkg/database"
	"github.com/medhaven/clinicflow/pkg/logger"
	"github.com/medhaven/clinicflow/pkg/metrics"
	"github.com/medhaven/clinicflow/pkg/tracer"
)

func main() {
	// .env is a local development convenience; production uses real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting clinicflow API server",
		zap.String("env", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
		zap.String("addr", cfg.Server.Address()),
	)

	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb := cache.NewClient(cfg.Redis)
	defer func() { _ = rdb.Close() }()
	rollupCache := cache.New(rdb, cfg.Redis.Prefix)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("clinicflow", registry)

	jwtManager := auth.NewJWTManager(cfg.JWT)

	userRepo := repository.NewUserRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	billingRepo := repository.NewBillingRepository(db)
	labRepo := repository.NewLabTestRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	auditSvc := service.NewAuditService(auditRepo, log, collector)
	defer auditSvc.Shutdown()

	slotSvc := service.NewSlotService(appointmentRepo, cfg.Clinic)
	authSvc := service.NewAuthService(userRepo, patientRepo, jwtManager, log)
	appointmentSvc := service.NewAppointmentService(appointmentRepo, patientRepo, slotSvc, auditSvc, collector, log)
	billingSvc := service.NewBillingService(billingRepo, labRepo, auditSvc, rollupCache, collector, log, cfg.Clinic.DefaultTestDurationMins)
	labSvc := service.NewLabTestService(labRepo, auditSvc, rollupCache, collector, log)
	aggSvc := service.NewAggregatorService(labRepo, appointmentRepo, billingRepo, rollupCache, collector, log, cfg.Clinic.RollupCacheTTL)

	router := v1.NewRouter(v1.RouterDeps{
		AuthHandler:        v1.NewAuthHandler(authSvc),
		AppointmentHandler: v1.NewAppointmentHandler(appointmentSvc),
		BillingHandler:     v1.NewBillingHandler(billingSvc),
		LabTestHandler:     v1.NewLabTestHandler(labSvc),
		DashboardHandler:   v1.NewDashboardHandler(aggSvc),
		JWTManager:         jwtManager,
		Metrics:            collector,
		Registry:           registry,
		Log:                log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
