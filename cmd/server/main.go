package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"lumichat/internal/config"
	"lumichat/internal/database"
	"lumichat/internal/handlers"
	"lumichat/internal/logging"
	"lumichat/internal/middleware"
	"lumichat/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting LumiChat Server...")

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
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Prometheus metrics registry
	metrics := services.InitMetrics()

	// Initialize services
	actorService := services.NewActorService(db)
	messageService := services.NewMessageService(db)
	memoryService := services.NewMemoryService(db)
	emojiService := services.NewEmojiService(db)
	providerService := services.NewProviderService(db)
	statsService := services.NewStatsService(db)
	llmService := services.NewLLMService(providerService, statsService, metrics)
	refreshService := services.NewMemoryRefreshService(actorService, messageService, memoryService, emojiService, providerService, llmService, metrics)
	connManager := services.NewConnectionManager(metrics)

	chatService := services.NewChatService(actorService, messageService, memoryService, emojiService, providerService, llmService, refreshService, metrics)
	chatService.TTSConfigured = cfg.TTSConfigured()
	chatService.RefreshEveryNTurns = cfg.RefreshEveryNTurns

	forumService := services.NewForumService(actorService, messageService, providerService, llmService)
	momentService := services.NewMomentService(actorService, messageService, providerService, llmService)
	syncService := services.NewSyncService(db)

	// Hourly call-stat GC
	schedulerService, err := services.NewSchedulerService(statsService)
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	if err := schedulerService.Start(); err != nil {
		log.Fatalf("❌ Failed to start scheduler: %v", err)
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "LumiChat v1.0",
		ReadTimeout:  300 * time.Second, // chat completions routinely run for minutes
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  300 * time.Second,
		BodyLimit:    20 * 1024 * 1024, // sync blobs carry whole client states
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("lumichat")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Load rate limiting configuration
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, LLM=%d/min, Sync=%d/min, WS=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.LLMMax,
		rateLimitConfig.SyncMax,
		rateLimitConfig.WebSocketMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	allowCredentials := allowedOrigins != "*"

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Admin-Token",
		AllowCredentials: allowCredentials,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", allowedOrigins)

	// Global API rate limiter - first line of DDoS defense
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, connManager)
	chatHandler := handlers.NewChatHandler(chatService, messageService)
	actorHandler := handlers.NewActorHandler(actorService)
	emojiHandler := handlers.NewEmojiHandler(emojiService)
	memoryHandler := handlers.NewMemoryHandler(memoryService, refreshService)
	providerHandler := handlers.NewProviderHandler(providerService, statsService)
	forumHandler := handlers.NewForumHandler(forumService)
	momentHandler := handlers.NewMomentHandler(momentService)
	syncHandler := handlers.NewSyncHandler(syncService)
	proxyHandler := handlers.NewProxyHandler()
	wsHandler := handlers.NewWebSocketHandler(connManager, chatService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	llmLimiter := middleware.LLMRateLimiter(rateLimitConfig)

	api := app.Group("/api")

	api.Post("/chat/send", llmLimiter, chatHandler.Send)
	api.Get("/chat/:actorId/history", chatHandler.History)
	api.Post("/chat/:actorId/regenerate", llmLimiter, chatHandler.Regenerate)

	api.Get("/actors", actorHandler.List)
	api.Post("/actors", actorHandler.Create)
	api.Get("/actors/:id", actorHandler.Get)
	api.Put("/actors/:id", actorHandler.Update)
	api.Delete("/actors/:id", actorHandler.Delete)

	api.Get("/profile", actorHandler.GetProfile)
	api.Put("/profile", actorHandler.SetProfile)

	api.Get("/emojis", emojiHandler.List)
	api.Put("/emojis", emojiHandler.Upsert)
	api.Delete("/emojis/:tag", emojiHandler.Delete)

	api.Get("/memory/global", memoryHandler.GetGlobal)
	api.Put("/memory/global", memoryHandler.SetGlobal)
	api.Get("/memory/character/:actorId", memoryHandler.GetCharacter)
	api.Put("/memory/character/:actorId", memoryHandler.SetCharacter)
	api.Get("/memory/table/:actorId", memoryHandler.GetTable)
	api.Put("/memory/table/:actorId", memoryHandler.SetTable)
	api.Post("/memory/table/:actorId/refresh", llmLimiter, memoryHandler.Refresh)
	api.Put("/memory/music", memoryHandler.SetMusic)

	api.Get("/providers", providerHandler.List)
	api.Post("/providers", providerHandler.Create)
	api.Put("/providers/:id", providerHandler.Update)
	api.Delete("/providers/:id", providerHandler.Delete)
	api.Post("/providers/:id/activate", providerHandler.Activate)
	api.Get("/providers/:id/stats", providerHandler.Stats)

	api.Post("/forum/generate", llmLimiter, forumHandler.Generate)
	api.Post("/forum/reply", llmLimiter, forumHandler.Reply)
	api.Post("/moments/generate", llmLimiter, momentHandler.Generate)
	api.Post("/moments/comments", llmLimiter, momentHandler.Comments)

	syncLimiter := middleware.SyncRateLimiter(rateLimitConfig)
	api.Post("/sync/upload", syncLimiter, syncHandler.Upload)
	api.Post("/sync/download", syncLimiter, syncHandler.Download)

	adminOnly := middleware.AdminMiddleware(cfg)
	api.Post("/sync/admin/keys", adminOnly, syncHandler.CreateKey)
	api.Delete("/sync/admin/keys", adminOnly, syncHandler.DeleteKey)
	api.Get("/sync/admin/stats", adminOnly, syncHandler.Stats)

	api.Post("/proxy/", llmLimiter, proxyHandler.Completions)
	api.Post("/test-connection", proxyHandler.TestConnection)

	// WebSocket route
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	wsConfig := websocket.Config{
		Origins: strings.Split(allowedOrigins, ","),
	}
	app.Use("/ws/chat", middleware.WebSocketRateLimiter(rateLimitConfig))
	app.Get("/ws/chat", websocket.New(wsHandler.Handle, wsConfig))

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down server...")

		if err := schedulerService.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
