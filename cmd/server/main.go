package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/audiostudio/api/internal/client"
	"github.com/audiostudio/api/internal/config"
	"github.com/audiostudio/api/internal/ffmpeg"
	"github.com/audiostudio/api/internal/handler"
	"github.com/audiostudio/api/internal/jobs"
	"github.com/audiostudio/api/internal/metrics"
	"github.com/audiostudio/api/internal/middleware"
	"github.com/audiostudio/api/internal/model"
	"github.com/audiostudio/api/internal/pipeline"
	"github.com/audiostudio/api/internal/service"
	"github.com/audiostudio/api/internal/stage"
	ws "github.com/audiostudio/api/internal/websocket"
	"github.com/audiostudio/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client. Redis backs both job snapshots and the task
	// queue, so the process cannot run without it.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis not available at %s: %v", cfg.Redis.Addr, err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize metrics
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Initialize stage clients
	runner := &ffmpeg.ExecRunner{}
	stageTimeout := time.Duration(cfg.Stages.Timeout) * time.Second
	registry, err := stage.NewRegistry(
		client.NewServiceStage(model.StageSwiftF0, cfg.Stages.SwiftF0URL, stageTimeout),
		client.NewServiceStage(model.StageSVC, cfg.Stages.SVCURL, stageTimeout),
		client.NewServiceStage(model.StageInstrumental, cfg.Stages.InstrumentalURL, stageTimeout),
		client.NewMixStage(cfg.FFmpeg.Path, runner),
	)
	if err != nil {
		log.Fatalf("Failed to build stage registry: %v", err)
	}

	// Initialize job manager with Redis-backed snapshots. Jobs found
	// running from a previous process are marked failed here.
	store := jobs.NewRedisStore(redisClient, time.Duration(cfg.Redis.SnapshotTTL)*time.Hour)
	manager, err := jobs.NewManager(ctx, store, registry.Names())
	if err != nil {
		log.Fatalf("Failed to initialize job manager: %v", err)
	}

	// Initialize object storage (optional - continues if not configured)
	var artifacts pipeline.ArtifactStore
	if cfg.S3.Endpoint != "" {
		objectStore, err := client.NewObjectStore(&cfg.S3)
		if err != nil {
			log.Printf("Warning: object storage not initialized: %v", err)
		} else {
			artifacts = objectStore
		}
	} else {
		log.Println("Info: object storage not configured, artifacts stay on local disk")
	}

	// Initialize pipeline
	governor := pipeline.NewGovernor(cfg.Processing.MaxConcurrentSegments, registry.Reclaimers(), collector)
	combiner := pipeline.NewCombiner(cfg.FFmpeg.Path, runner, cfg.Storage.OutputDir, cfg.Storage.TempDir)
	orchestrator, err := pipeline.NewOrchestrator(pipeline.Options{
		Jobs:      manager,
		Registry:  registry,
		Governor:  governor,
		Combiner:  combiner,
		Notifier:  hub,
		Metrics:   collector,
		Artifacts: artifacts,
		TempDir:   cfg.Storage.TempDir,
	})
	if err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}

	// Initialize services
	jobService := service.NewJobService(manager, asynqClient, validate, collector, hub)
	modelService := service.NewModelService(registry)
	uploadService := service.NewUploadService(cfg.Storage.UploadDir, cfg.Storage.MaxUploadMB)

	// Initialize handlers
	jobsHandler := handler.NewJobsHandler(jobService)
	modelsHandler := handler.NewModelsHandler(modelService)
	uploadHandler := handler.NewUploadHandler(uploadService)
	healthHandler := handler.NewHealthHandler(modelService)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Storage.MaxUploadMB) * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check and metrics
	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := app.Group("/api/v1")

	api.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadsPerHour), uploadHandler.Audio)

	api.Post("/jobs", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour), jobsHandler.Create)
	api.Get("/jobs", jobsHandler.List)
	api.Get("/jobs/:id", jobsHandler.Get)
	api.Get("/jobs/:id/progress", jobsHandler.Progress)
	api.Get("/jobs/:id/segments", jobsHandler.Segments)
	api.Get("/jobs/:id/preview", jobsHandler.Preview)
	api.Get("/jobs/:id/download", jobsHandler.Download)
	api.Delete("/jobs/:id", jobsHandler.Cancel)

	api.Get("/models/status", modelsHandler.Status)
	api.Post("/models/load/:stage", modelsHandler.Load)
	api.Get("/optimization/profiles", modelsHandler.Profiles)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	pipelineWorker := worker.NewPipelineWorker(orchestrator, manager, collector, hub)
	go startWorkerServer(cfg, pipelineWorker)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, pipelineWorker *worker.PipelineWorker) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				service.QueuePipeline: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypePipeline, pipelineWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
