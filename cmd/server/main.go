package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mapit-backend/internal/config"
	"mapit-backend/internal/database"
	"mapit-backend/internal/handlers"
	"mapit-backend/internal/middleware"
	"mapit-backend/internal/models"
	"mapit-backend/internal/repository"
	"mapit-backend/internal/router"
	"mapit-backend/internal/services"
	"mapit-backend/internal/websocket"
	"mapit-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting MapIt Backend...")
	ctx := context.Background()

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	mindMapRepo := repository.NewMindMapRepo(pool)
	flashcardRepo := repository.NewFlashcardRepo(pool)
	gameRepo := repository.NewGameRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize AI Client ────
	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		log.Fatalf("✗ AI client initialization failed: %v", err)
	}
	generator := services.NewLLMGenerator(completer, cfg.GeminiRequestsPerMin, cfg.GeminiConcurrentReqs)
	defer generator.Close()
	log.Printf("✓ AI client initialized (%s)", cfg.AIProvider)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	queue := worker.NewQueue(redisClients.Queue)
	publisher := websocket.NewPublisher(redisClients.Queue)

	authService := services.NewAuthService(userRepo, services.NewRedisTokenStore(redisClients.Queue), jwtAuth)
	mindMapService := services.NewMindMapService(
		mindMapRepo,
		jobRepo,
		queue,
		services.NewDocumentExtractor(),
		generator,
		publisher,
		cfg.MaxUploadBytes(),
		cfg.FlashcardsPerMap,
	)
	flashcardService := services.NewFlashcardService(flashcardRepo, mindMapRepo, generator)
	gameService := services.NewGameService(gameRepo, mindMapRepo)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, queue, jobRepo, publisher, cfg.WorkerCount)
	workerPool.Register(models.JobTypeMindMapGeneration, mindMapService)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	reminders := services.NewReminderScheduler(flashcardRepo, publisher, cfg.ReminderTime)
	if err := reminders.Start(); err != nil {
		log.Fatalf("✗ Review reminders failed: %v", err)
	}
	log.Println("✓ Review reminder scheduler started")

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.FrontendURL)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(jwtAuth, router.Handlers{
		Auth:       handlers.NewAuthHandler(authService),
		MindMaps:   handlers.NewMindMapHandler(mindMapService, cfg.MaxUploadBytes()),
		Flashcards: handlers.NewFlashcardHandler(flashcardService),
		Games:      handlers.NewGameHandler(gameService),
		WebSocket:  wsHub.HandleWebSocket,
	}, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		reminders.Stop()
		wsHub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ MapIt Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func newCompleter(ctx context.Context, cfg *config.Config) (services.Completer, error) {
	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		return services.NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	default:
		return services.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	}
}
