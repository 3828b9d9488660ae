package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"complaint-workflow-service/internal/cache"
	"complaint-workflow-service/internal/clock"
	"complaint-workflow-service/internal/config"
	"complaint-workflow-service/internal/events"
	"complaint-workflow-service/internal/handlers"
	"complaint-workflow-service/internal/jobs"
	"complaint-workflow-service/internal/metrics"
	"complaint-workflow-service/internal/middleware"
	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
	"complaint-workflow-service/internal/seeders"
	"complaint-workflow-service/internal/services"
)

// @title Complaint Workflow API
// @version 1.0.0
// @description Municipal complaint intake, workflow routing, assignment and SLA escalation

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	// Initialize storage
	var store repository.ComplaintRepositoryInterface
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		store = repository.NewMemoryRepository()
	default:
		db, err := config.InitDB(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to database:", err)
		}

		logger.Info("Running database migrations...")
		if err := db.AutoMigrate(
			&models.WorkflowDefinition{},
			&models.Employee{},
			&models.Complaint{},
			&models.StatusHistoryEntry{},
		); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
		logger.Info("Database migrations completed")

		store = repository.NewComplaintRepository(db)
	}
	repo := repository.NewResilientRepository(store, repository.RetryPolicy{
		Timeout:         cfg.StorageTimeout,
		MaxRetries:      cfg.StorageMaxRetries,
		InitialInterval: cfg.StorageRetryInterval,
	})

	// Redis is optional: without it the workflow cache is off and the scan lock is process-local
	redisClient := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDB)
	if redisClient != nil {
		logger.Info("Redis connected")
		defer redisClient.Close()
	} else if cfg.RedisHost != "" {
		logger.Warn("Redis unavailable, running without workflow cache and distributed scan lock")
	}
	workflowCache := cache.NewWorkflowCache(redisClient, cfg.WorkflowCacheTTL)
	scanLock := cache.NewScanLock(redisClient, "complaints:sla-scan:lock", 10*time.Minute)

	// Initialize event dispatcher (optional - service works without NATS)
	var dispatcher events.Dispatcher = events.NewLogDispatcher(logger)
	if cfg.NATSURL != "" {
		natsDispatcher, err := events.NewNATSDispatcher(cfg.NATSURL, logger)
		if err != nil {
			logger.Warnf("Failed to initialize NATS dispatcher: %v. Events will only be logged.", err)
		} else {
			logger.Info("NATS dispatcher initialized")
			dispatcher = natsDispatcher
			defer natsDispatcher.Close()
		}
	} else {
		logger.Info("NATS_URL not configured, event publishing disabled")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// Initialize services
	clk := clock.System()
	workflowRegistry := services.NewWorkflowRegistry(repo, workflowCache, clk, logger)
	ranker := services.NewCandidateRanker(repo)
	engine := services.NewTransitionEngine(repo, workflowRegistry, ranker, dispatcher, clk, collector, logger,
		services.EngineConfig{MaxEscalations: cfg.MaxEscalations})
	allocator := services.NewAllocator(repo, ranker, engine, collector, logger)
	complaintService := services.NewComplaintService(repo, workflowRegistry, dispatcher, clk, collector, logger)
	employeeService := services.NewEmployeeService(repo, logger)

	if cfg.WorkflowSeedFile != "" {
		seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := seeders.SeedFromFile(seedCtx, workflowRegistry, cfg.WorkflowSeedFile, logger); err != nil {
			logger.Warnf("Failed to seed workflows: %v", err)
		}
		cancel()
	}

	// Start SLA scan job
	slaJob := jobs.NewSLAScanJob(engine, scanLock, cfg.SLAScanSchedule, cfg.SLAScanBatchSize, logger)
	if err := slaJob.Start(context.Background()); err != nil {
		logger.Fatalf("Failed to start SLA scan job: %v", err)
	}

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(collector.GinMiddleware())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck(repo))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	api.Use(middleware.ActorAuth(cfg.JWTSecret))
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, trusting X-User-* headers")
	}

	createLimiter := middleware.NewRateLimiter(cfg.CreateRateLimit, cfg.CreateRateBurst)
	handlers.RegisterRoutes(api, handlers.Handlers{
		Complaints: handlers.NewComplaintHandler(complaintService, engine, allocator, logger),
		Workflows:  handlers.NewWorkflowHandler(workflowRegistry, logger),
		Employees:  handlers.NewEmployeeHandler(employeeService, logger),
		Export:     handlers.NewExportHandler(complaintService, logger),
	}, createLimiter.Middleware())

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("Complaint workflow service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	slaJob.Stop()
	logger.Info("Server shutdown complete")
}
