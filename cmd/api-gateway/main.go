package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-substitute-api/api/swagger"
	"github.com/noah-isme/sma-substitute-api/internal/handler"
	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/repository"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	"github.com/noah-isme/sma-substitute-api/pkg/cache"
	"github.com/noah-isme/sma-substitute-api/pkg/config"
	"github.com/noah-isme/sma-substitute-api/pkg/database"
	"github.com/noah-isme/sma-substitute-api/pkg/jobs"
	"github.com/noah-isme/sma-substitute-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-substitute-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-substitute-api/pkg/middleware/requestid"
)

// @title SMA Substitute API
// @version 1.0.0
// @description Substitute teacher matching, escalation and assignment
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, running without cache and realtime fan-out", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Matching.CacheTTL, logr, cfg.Matching.CacheEnabled)

	requestRepo := repository.NewSubstituteRequestRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	candidateRepo := repository.NewCandidateRepository(db)
	settingsRepo := repository.NewSchoolSettingsRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	sessionRepo := repository.NewTeachingSessionRepository(db)

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	matchingSvc := service.NewMatchingConfigService(settingsRepo, cacheSvc, validate, logr, service.MatchingConfigServiceConfig{
		Defaults: models.MatchingConfig{
			BatchSize:       cfg.Matching.DefaultBatchSize,
			WaitTimeMinutes: cfg.Matching.DefaultWaitMinutes,
		},
		CacheTTL: cfg.Matching.CacheTTL,
	})
	ranking := service.NewRankingEngine(candidateRepo, logr)
	stateMachine := service.NewRequestStateMachine(requestRepo, logr)
	gateway := service.NewNotificationGateway(notificationRepo, cacheRepo, metrics, cfg.Notifications.ChannelPrefix, logr)
	sessions := service.NewSessionService(sessionRepo, logr)
	ledger := service.NewInvitationLedger(requestRepo, invitationRepo, availabilityRepo, db, gateway, sessions, metrics, logr)

	escalation := service.NewEscalationService(requestRepo, matchingSvc, ranking, ledger, stateMachine, db, gateway, nil, metrics, logr)
	escalationQueue := jobs.NewQueue("escalation", escalation.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Escalation.Workers,
		BufferSize: cfg.Escalation.BufferSize,
		MaxRetries: cfg.Escalation.MaxRetries,
		RetryDelay: cfg.Escalation.RetryDelay,
		Logger:     logr,
	})
	escalation.SetScheduler(service.NewQueueCheckScheduler(escalationQueue, logr))
	escalationQueue.Start(ctx)
	defer escalationQueue.Stop()

	// checks queued in memory do not survive a restart
	if resumed, err := escalation.Resume(ctx); err != nil {
		logr.Sugar().Errorw("failed to resume escalation checks", "error", err)
	} else {
		logr.Sugar().Infow("escalation checks resumed", "scheduled", resumed)
	}
	if cfg.Escalation.SweepInterval > 0 {
		go escalation.Sweep(ctx, cfg.Escalation.SweepInterval)
	}

	requestSvc := service.NewSubstituteRequestService(requestRepo, ledger, invitationRepo, escalation, stateMachine, db, gateway, validate, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, db, validate, logr)

	requestHandler := handler.NewSubstituteRequestHandler(requestSvc)
	invitationHandler := handler.NewInvitationHandler(ledger, requestSvc)
	matchingHandler := handler.NewMatchingConfigHandler(matchingSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.ReadinessProbe{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			if redisClient == nil {
				return errors.New("redis not connected")
			}
			return redisClient.Ping(ctx).Err()
		},
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admins := middleware.RequireRoles(models.RoleSchoolAdmin, models.RoleSuperAdmin)
	teachers := middleware.RequireRoles(models.RoleTeacher)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	requests := api.Group("/substitute-requests")
	requests.POST("", admins, requestHandler.Create)
	requests.GET("", admins, requestHandler.List)
	requests.GET("/:id", requestHandler.Get)
	requests.POST("/:id/start", admins, requestHandler.Start)
	requests.POST("/:id/cancel", admins, requestHandler.Cancel)
	requests.POST("/:id/complete", admins, requestHandler.Complete)
	requests.GET("/:id/invitations", admins, requestHandler.History)
	requests.POST("/:id/accept", teachers, invitationHandler.Accept)
	requests.POST("/:id/decline", teachers, invitationHandler.Decline)

	api.POST("/invitations/:id/withdraw", admins, invitationHandler.Withdraw)

	api.GET("/schools/:id/matching-config", admins, matchingHandler.Get)
	api.PUT("/schools/:id/matching-config", admins, matchingHandler.Update)

	api.POST("/availability", teachers, availabilityHandler.Create)
	api.GET("/availability", teachers, availabilityHandler.List)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down", "pending_checks", escalationQueue.Pending())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
