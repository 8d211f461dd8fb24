package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"genslides/internal/config"
	"genslides/internal/database"
	"genslides/internal/handlers"
	"genslides/internal/logging"
	"genslides/internal/middleware"
	"genslides/internal/providers"
	"genslides/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting GenSlides Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.DatabasePath)

	// Initialize SQLite database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Redis is optional: without it realtime events stay in-process
	var redisService *services.RedisService
	var pubsubService *services.PubSubService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (cross-instance events disabled)", err)
		} else {
			defer redisService.Close()
			pubsubService = services.NewPubSubService(redisService, uuid.New().String())
			if err := pubsubService.Start(); err != nil {
				log.Printf("⚠️ Failed to start pub/sub: %v (cross-instance events disabled)", err)
				pubsubService = nil
			}
		}
	} else {
		log.Println("⚠️ REDIS_URL not set, running single-instance")
	}

	// Image-generation engines
	engineRegistry := providers.NewRegistry(
		providers.NewGeminiEngine(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiModel),
		providers.NewVolcengineEngine(cfg.VolcengineAPIKey, cfg.VolcengineBaseURL, cfg.VolcengineModel),
	)
	log.Printf("🎨 Image engines configured: %v (default: %s)", engineRegistry.Names(), cfg.DefaultEngine)

	// Core services
	connManager := services.NewConnectionManager()
	services.InitMetrics(connManager)
	broadcaster := services.NewBroadcaster(connManager, pubsubService)

	projectService := services.NewProjectService(db, cfg.DefaultEngine)
	costService := services.NewCostService(db, cfg.CostPerStyleImage, cfg.CostPerSlideImage)
	styleService := services.NewStyleService(db, cfg.DataDir, engineRegistry, projectService, broadcaster,
		costService.Summary, cfg.StyleCandidateCount, cfg.StyleCandidateTTL, cfg.GenerationTimeout)
	imageService := services.NewImageService(db, cfg.DataDir, engineRegistry, projectService, styleService)
	taskRegistry := services.NewTaskRegistry(broadcaster, imageService.Generate, costService.Summary,
		cfg.GenerationTimeout, projectService.Engine)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "GenSlides v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    10 * 1024 * 1024, // slide content and style prompts only; images never come through the API
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("genslides")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Load rate limiting configuration
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Generate=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.GenerateMax,
		rateLimitConfig.WebSocketMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: allowedOrigins != "*",
	}))

	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(connManager, redisService)
	projectHandler := handlers.NewProjectHandler(projectService, costService)
	slideHandler := handlers.NewSlideHandler(projectService)
	imageHandler := handlers.NewImageHandler(projectService, imageService, taskRegistry, broadcaster)
	styleHandler := handlers.NewStyleHandler(projectService, styleService)
	exportHandler := handlers.NewExportHandler(projectService, imageService)
	wsHandler := handlers.NewWebSocketHandler(connManager, taskRegistry, cfg.HeartbeatInterval)

	// Routes
	app.Get("/health", healthHandler.Handle)
	app.Static("/static", cfg.DataDir)

	api := app.Group("/api")
	api.Get("/slides", projectHandler.List)
	api.Get("/style-templates", styleHandler.Templates)

	// Project-level routes must precede the /:sid catch-alls
	project := api.Group("/slides/:slug")
	project.Get("/", projectHandler.Get)
	project.Delete("/", projectHandler.Delete)
	project.Post("/", slideHandler.Create)
	project.Put("/title", projectHandler.UpdateTitle)
	project.Put("/reorder", slideHandler.Reorder)
	project.Get("/engine", projectHandler.GetEngine)
	project.Put("/engine", projectHandler.SetEngine)
	project.Get("/style", styleHandler.Get)
	project.Post("/style/generate", middleware.GenerateRateLimiter(rateLimitConfig), styleHandler.Generate)
	project.Put("/style", styleHandler.Save)
	project.Delete("/style", styleHandler.Clear)
	project.Get("/cost", projectHandler.GetCost)
	project.Get("/export", exportHandler.Handle)

	project.Put("/:sid", slideHandler.UpdateContent)
	project.Delete("/:sid", slideHandler.Delete)
	project.Get("/:sid/images", imageHandler.List)
	project.Post("/:sid/generate", middleware.GenerateRateLimiter(rateLimitConfig), imageHandler.Generate)
	project.Delete("/:sid/images/:hash", imageHandler.Delete)
	project.Put("/:sid/selected-image", imageHandler.Select)

	// WebSocket upgrade gate
	app.Use("/ws/slides/:slug", middleware.WebSocketRateLimiter(rateLimitConfig), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/slides/:slug", websocket.New(wsHandler.Handle))

	// Start server
	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔗 WebSocket endpoint: ws://localhost:%s/ws/slides/{slug}", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Let running generations reach a terminal state
		done := make(chan struct{})
		go func() {
			taskRegistry.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			log.Println("⚠️ Timed out waiting for generation tasks")
		}

		if pubsubService != nil {
			if err := pubsubService.Stop(); err != nil {
				log.Printf("⚠️ Error stopping PubSub: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
