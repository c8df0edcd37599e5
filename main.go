package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"chainverse/database"
	"chainverse/handlers"
	"chainverse/middleware"
	"chainverse/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	validateEnvironment()

	database.InitDB()

	redisClient := connectRedis()
	middleware.InitRateLimiters(redisClient)

	// Stores
	challengeStore := services.NewGormChallengeStore()
	submissionStore := services.NewGormSubmissionStore()
	resultStore := services.NewGormResultStore()
	studentStore := &services.GormStudentStore{}
	tokenTxStore := &services.GormTokenTxStore{}
	notificationStore := &services.GormNotificationStore{}

	// Services
	leaderboardService := services.NewLeaderboardService(services.NewGormPointsStore())
	tokenService := services.NewSimulatedTokenService()
	rewardService := services.NewRewardService(tokenService, tokenService, studentStore, resultStore, tokenTxStore)

	var emailService services.EmailService
	if os.Getenv("SENDGRID_API_KEY") != "" {
		emailService = services.NewSendgridEmailService()
	} else {
		log.Println("SENDGRID_API_KEY not set, emails will be logged to the console")
		emailService = services.ConsoleEmailService{}
	}
	notificationService := services.NewNotificationService(emailService, studentStore, notificationStore, resultStore)

	evaluationService := services.NewEvaluationService(
		challengeStore, submissionStore, resultStore,
		leaderboardService, rewardService, notificationService,
	)
	evaluationService.SetEventPublisher(handlers.PublishChallengeEvent)

	var queue services.EvaluationQueue
	if redisClient != nil {
		queue = services.NewRedisEvaluationQueue(redisClient)
	} else {
		log.Println("REDIS_URL not set, using in-memory evaluation queue")
		queue = services.NewMemoryEvaluationQueue(0)
	}

	worker := services.NewEvaluationWorker(queue, evaluationService)
	worker.Start()
	defer worker.Stop()

	services.InitSweeperService(challengeStore)
	services.GetSweeperService().Start()
	defer services.GetSweeperService().Stop()

	handlers.Init(challengeStore, submissionStore, resultStore, queue, evaluationService, leaderboardService)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    4 * 1024 * 1024, // 4MB
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	corsOrigins := os.Getenv("CORS_ORIGINS")
	if corsOrigins == "" {
		corsOrigins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	app.Use(middleware.RateLimitMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
			"version":   "1.0.0",
		})
	})

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.AuthRateLimitMiddleware())
	authGroup.Post("/register", handlers.Register)
	authGroup.Post("/login", handlers.Login)
	authGroup.Get("/me", middleware.AuthMiddleware, handlers.Me)
	authGroup.Put("/wallet", middleware.AuthMiddleware, handlers.UpdateWallet)

	challenges := api.Group("/challenges", middleware.AuthMiddleware)
	challenges.Post("/", handlers.CreateChallenge)
	challenges.Get("/history", handlers.GetChallengeHistory)
	challenges.Get("/:id", handlers.GetChallenge)
	challenges.Post("/:id/submit", middleware.SubmitRateLimitMiddleware(), handlers.SubmitAnswers)
	challenges.Get("/:id/result", handlers.GetChallengeResult)

	api.Get("/leaderboard", handlers.GetLeaderboard)
	api.Get("/players/stats", middleware.AuthMiddleware, handlers.GetPlayerStats)

	adminGroup := api.Group("/admin", middleware.AdminAuthMiddleware)
	adminGroup.Post("/challenges/:id/evaluate", handlers.AdminEvaluateChallenge)
	adminGroup.Post("/challenges/:id/redeliver", handlers.AdminRedeliverSideEffects)

	ws := app.Group("/ws", middleware.WebSocketAuthMiddleware, handlers.WebSocketUpgrade)
	ws.Get("/challenges/:id", handlers.ChallengeFeed)

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Printf("🚀 HTTP server starting on port %s", port)
	log.Printf("📊 Environment: %s", getEnv("APP_ENV", "development"))

	if err := app.Listen(":" + port); err != nil {
		log.Fatal("Failed to start HTTP server:", err)
	}

	_ = database.CloseDB()
}

func connectRedis() *redis.Client {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("Invalid REDIS_URL, continuing without redis: %v", err)
		return nil
	}
	return redis.NewClient(opts)
}

// validateEnvironment checks for required environment variables
func validateEnvironment() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("FATAL: JWT_SECRET environment variable must be set. Generate one with: openssl rand -base64 64")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("FATAL: JWT_SECRET must be at least 32 characters long")
	}

	if os.Getenv("APP_ENV") == "production" {
		corsOrigins := os.Getenv("CORS_ORIGINS")
		if corsOrigins == "" || corsOrigins == "http://localhost:3000" {
			log.Println("WARNING: CORS_ORIGINS not properly configured for production")
		}
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if os.Getenv("APP_ENV") == "production" && code == 500 {
		message = "An error occurred. Please try again later."
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
