package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lumalearn/luma-backend/internal/clients/redis"
	"github.com/lumalearn/luma-backend/internal/db"
	"github.com/lumalearn/luma-backend/internal/handlers"
	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/middleware"
	"github.com/lumalearn/luma-backend/internal/repos"
	"github.com/lumalearn/luma-backend/internal/server"
	"github.com/lumalearn/luma-backend/internal/services"
	"github.com/lumalearn/luma-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	extractionPollSecs := utils.GetEnvAsInt("EXTRACTION_POLL_SECONDS", 5, log)
	sweepIntervalSecs := utils.GetEnvAsInt("INACTIVITY_SWEEP_SECONDS", 60, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	spaceRepo := repos.NewSpaceRepo(thePG, log)
	convRepo := repos.NewConversationRepo(thePG, log)
	msgRepo := repos.NewMessageRepo(thePG, log)
	profileRepo := repos.NewProfileRepo(thePG, log)
	attemptRepo := repos.NewQuizAttemptRepo(thePG, log)
	eventRepo := repos.NewLearningEventRepo(thePG, log)
	runRepo := repos.NewExtractionRunRepo(thePG, log)

	// Redis event mirror (optional)
	var eventBus redis.EventBus
	if addr := utils.GetEnv("REDIS_ADDR", "", log); addr != "" {
		eventBus, err = redis.NewEventBus(log, addr, utils.GetEnv("REDIS_EVENTS_CHANNEL", "learning_events", log))
		if err != nil {
			log.Warn("Redis event bus init failed, continuing without it", "error", err)
			eventBus = nil
		} else {
			defer eventBus.Close()
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	completionClient, err := services.NewCompletionClient(log)
	if err != nil {
		log.Error("Could not init CompletionClient", "error", err)
		os.Exit(1)
	}
	eventService := services.NewLearningEventService(thePG, log, eventRepo, eventBus)
	authService := services.NewAuthService(thePG, log, userRepo, profileRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second)
	spaceService := services.NewSpaceService(thePG, log, spaceRepo)
	convService := services.NewConversationService(thePG, log, spaceRepo, convRepo, msgRepo, runRepo, eventService)
	tutorService := services.NewTutorService(thePG, log, spaceRepo, convRepo, msgRepo, profileRepo, eventService, completionClient)
	quizService := services.NewQuizService(thePG, log, spaceRepo, convRepo, msgRepo, attemptRepo, eventService)
	profileService := services.NewProfileService(thePG, log, profileRepo)
	extractionService := services.NewExtractionService(thePG, log, spaceRepo, convRepo, msgRepo, profileRepo, attemptRepo, runRepo, eventService, completionClient)

	// Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	extractionService.StartWorker(ctx, time.Duration(extractionPollSecs)*time.Second)
	convService.StartSweeper(ctx, time.Duration(sweepIntervalSecs)*time.Second)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	spaceHandler := handlers.NewSpaceHandler(log, spaceService)
	convHandler := handlers.NewConversationHandler(log, convService)
	messageHandler := handlers.NewMessageHandler(log, tutorService, quizService)
	profileHandler := handlers.NewProfileHandler(log, profileService, eventService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:         authHandler,
		AuthMiddleware:      authMiddleware,
		SpaceHandler:        spaceHandler,
		ConversationHandler: convHandler,
		MessageHandler:      messageHandler,
		ProfileHandler:      profileHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
