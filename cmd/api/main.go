package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/api/handlers"
	"github.com/doc-analyzer/backend/internal/cache/redis"
	"github.com/doc-analyzer/backend/internal/extractor"
	"github.com/doc-analyzer/backend/internal/ingestion"
	"github.com/doc-analyzer/backend/internal/kg/neo4j"
	"github.com/doc-analyzer/backend/internal/langdetect"
	"github.com/doc-analyzer/backend/internal/llm"
	"github.com/doc-analyzer/backend/internal/metrics"
	"github.com/doc-analyzer/backend/internal/middleware/ratelimit"
	"github.com/doc-analyzer/backend/internal/middleware/security"
	"github.com/doc-analyzer/backend/internal/middleware/validation"
	"github.com/doc-analyzer/backend/internal/pipeline"
	"github.com/doc-analyzer/backend/internal/prompt"
	"github.com/doc-analyzer/backend/internal/storage/sqlite"
	"github.com/doc-analyzer/backend/pkg/config"
	appLogger "github.com/doc-analyzer/backend/pkg/logger"
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

	metrics.Init()

	appLogger.Info("Starting Document Analyzer API Server")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	health := handlers.NewHealthHandler()
	health.Register("sqlite", func(context.Context) error { return sqliteClient.Ping() })

	processorOpts := []ingestion.Option{ingestion.WithStore(sqliteClient)}

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(context.Background(), cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		processorOpts = append(processorOpts, ingestion.WithCache(redisClient, cfg.Analysis.CacheTTL()))
		health.Register("redis", redisClient.Ping)
	}

	var related handlers.RelatedFinder
	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(
			context.Background(),
			cfg.Neo4j.URI,
			cfg.Neo4j.Username,
			cfg.Neo4j.Password,
			cfg.Neo4j.Database,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
		}
		defer neo4jClient.Close(context.Background())

		processorOpts = append(processorOpts, ingestion.WithGraph(neo4jClient))
		health.Register("neo4j", neo4jClient.Ping)
		related = neo4jClient
	}

	generator, err := llm.New(cfg.LLM)
	if err != nil {
		appLogger.Fatal("Failed to create generator", zap.Error(err))
	}

	identifier, err := langdetect.New(cfg.Analysis.LanguageDetector, generator)
	if err != nil {
		appLogger.Fatal("Failed to create language identifier", zap.Error(err))
	}

	analyzer, err := pipeline.New(pipeline.Config{
		Extractor:           extractor.New(extractor.Config{Logger: appLogger.Named("extractor")}),
		Language:            identifier,
		Generator:           generator,
		Prompt:              prompt.Builder{MaxContentChars: cfg.Analysis.MaxContentChars},
		LanguageSampleChars: cfg.Analysis.LanguageSampleChars,
		Logger:              appLogger.Named("pipeline"),
	})
	if err != nil {
		appLogger.Fatal("Failed to create analysis pipeline", zap.Error(err))
	}

	processor := ingestion.NewProcessor(analyzer, processorOpts...)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		Cost:                 ratelimit.CostBySize(5 << 20),
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	validate := validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	})

	timeout := cfg.LLM.GenerationTimeout()
	analysisHandler := handlers.NewAnalysisHandler(processor, related, timeout)
	documentHandler := handlers.NewDocumentHandler(processor, timeout)
	wsHandler := handlers.NewWebSocketHandler(processor, timeout)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Post("/analyze", limiter.Middleware(), validate, analysisHandler.Analyze)
	api.Post("/analyze/text", limiter.Middleware(), validate, documentHandler.AnalyzeText)

	api.Get("/analyses", analysisHandler.List)
	api.Get("/analyses/:id", analysisHandler.Get)
	api.Get("/analyses/:id/report", analysisHandler.Report)
	api.Get("/analyses/:id/related", analysisHandler.Related)
	api.Delete("/analyses/:id", analysisHandler.Delete)
	api.Get("/entities", analysisHandler.TopEntities)
	api.Delete("/cache", analysisHandler.ClearCache)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/analyze", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", health.Health)
	api.Get("/ready", health.Ready)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("neo4j", cfg.Neo4j.Enabled),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
