package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/complymatch/backend/internal/api/handlers"
	"github.com/complymatch/backend/internal/assessment"
	"github.com/complymatch/backend/internal/cache/redis"
	"github.com/complymatch/backend/internal/catalog"
	"github.com/complymatch/backend/internal/engine/gaps"
	"github.com/complymatch/backend/internal/engine/ingest"
	"github.com/complymatch/backend/internal/evaluation"
	"github.com/complymatch/backend/internal/kg/neo4j"
	"github.com/complymatch/backend/internal/metrics"
	"github.com/complymatch/backend/internal/middleware/ratelimit"
	"github.com/complymatch/backend/internal/middleware/security"
	"github.com/complymatch/backend/internal/middleware/validation"
	"github.com/complymatch/backend/internal/storage/sqlite"
	"github.com/complymatch/backend/pkg/config"
	appLogger "github.com/complymatch/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting ComplyMatch API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	redisClient, err := redis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		time.Duration(cfg.Redis.TTLSec)*time.Second,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	neo4jClient, err := neo4j.NewClient(
		cfg.Neo4j.URI,
		cfg.Neo4j.Username,
		cfg.Neo4j.Password,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
	}
	defer neo4jClient.Close(context.Background())

	if err := neo4jClient.Seed(context.Background()); err != nil {
		appLogger.Warn("Failed to seed category graph", zap.Error(err))
	}

	related, err := neo4jClient.Snapshot(context.Background())
	if err != nil {
		appLogger.Warn("Failed to load category graph, related categories get the default overlap", zap.Error(err))
		related = nil
	}

	service := assessment.NewService(sqliteClient, redisClient, related, assessment.Config{
		Thresholds: gaps.Thresholds{
			Critical:   cfg.Scoring.CriticalThreshold,
			High:       cfg.Scoring.HighThreshold,
			Medium:     cfg.Scoring.MediumThreshold,
			Low:        gaps.DefaultThresholds().Low,
			SurfaceLow: cfg.Scoring.SurfaceLow,
		},
		MatchThreshold: cfg.Matching.DefaultThreshold,
		MatchLimit:     cfg.Matching.DefaultLimit,
		RelatedOverlap: cfg.Matching.RelatedOverlap,
	})

	evalClient := evaluation.NewClient(
		cfg.Evaluation.APIKey,
		cfg.Evaluation.Model,
		cfg.Evaluation.Temperature,
		cfg.Evaluation.MaxTokens,
		cfg.Evaluation.TimeoutSec,
	)
	runner := evaluation.NewRunner(evalClient, ingest.New(sqliteClient), cfg.Evaluation.Workers)

	importer := catalog.NewImporter(sqliteClient)

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Catalog.RefreshCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if snapshot, err := neo4jClient.Snapshot(ctx); err != nil {
			appLogger.Warn("Scheduled category graph refresh failed", zap.Error(err))
		} else {
			service.SetRelatedness(snapshot)
		}

		if cfg.Catalog.DirectoryURL != "" {
			if stats, err := importer.ImportFromURL(ctx, cfg.Catalog.DirectoryURL); err != nil {
				appLogger.Warn("Scheduled catalog refresh failed", zap.Error(err))
			} else {
				metrics.CatalogVendorsImported.Add(float64(stats.Vendors))
			}
		}
	})
	if err != nil {
		appLogger.Fatal("Invalid catalog refresh schedule", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	assessmentHandler := handlers.NewAssessmentHandler(service, runner)
	weightsHandler := handlers.NewWeightsHandler(service)
	templateHandler := handlers.NewTemplateHandler(sqliteClient)
	catalogHandler := handlers.NewCatalogHandler(importer)
	wsHandler := handlers.NewWebSocketHandler(service, runner)

	api := app.Group("/api/v1")

	api.Post("/templates", templateHandler.CreateTemplate)
	api.Get("/templates/:id", templateHandler.GetTemplate)
	api.Put("/templates/:id/sections/:sectionId/weight", weightsHandler.StageSectionWeight)
	api.Put("/templates/:id/weights", weightsHandler.StageWeight)
	api.Get("/templates/:id/weights/:parentId", weightsHandler.GetWeights)
	api.Post("/templates/:id/weights/commit", weightsHandler.CommitWeights)
	api.Post("/templates/:id/weights/discard", weightsHandler.DiscardWeights)

	api.Post("/assessments", assessmentHandler.CreateAssessment)
	api.Post("/assessments/:id/complete", assessmentHandler.CompleteAssessment)
	api.Post("/assessments/:id/score", assessmentHandler.ComputeScore)
	api.Get("/assessments/:id/gaps", assessmentHandler.GetGaps)
	api.Get("/assessments/:id/matches", assessmentHandler.GetMatches)
	api.Get("/assessments/:id/strategy", assessmentHandler.GetStrategy)
	api.Get("/assessments/:id/progress", assessmentHandler.GetProgress)
	api.Post("/assessments/:id/answers/:questionId/evaluate", assessmentHandler.Evaluate)
	api.Delete("/assessments/:id/answers/:questionId/evaluate", assessmentHandler.CancelEvaluate)

	api.Post("/catalog/import", catalogHandler.Import)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/assessments/:id", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
