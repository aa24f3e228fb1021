package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lumalearn/luma-backend/internal/handlers"
	"github.com/lumalearn/luma-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler         *handlers.AuthHandler
	AuthMiddleware      *middleware.AuthMiddleware
	SpaceHandler        *handlers.SpaceHandler
	ConversationHandler *handlers.ConversationHandler
	MessageHandler      *handlers.MessageHandler
	ProfileHandler      *handlers.ProfileHandler
	AllowOrigins        []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)

	// Protected
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	protected.POST("/refresh", cfg.AuthHandler.Refresh)

	// Spaces
	protected.POST("/spaces", cfg.SpaceHandler.Create)
	protected.GET("/spaces", cfg.SpaceHandler.List)
	protected.GET("/spaces/:spaceID", cfg.SpaceHandler.Get)
	protected.DELETE("/spaces/:spaceID", cfg.SpaceHandler.Delete)

	// Conversations
	protected.POST("/spaces/:spaceID/conversations", cfg.ConversationHandler.Start)
	protected.GET("/spaces/:spaceID/conversations", cfg.ConversationHandler.List)
	protected.GET("/conversations/:conversationID", cfg.ConversationHandler.Get)
	protected.POST("/conversations/:conversationID/end", cfg.ConversationHandler.End)

	// Turns and quizzes
	protected.POST("/conversations/:conversationID/messages", cfg.MessageHandler.Send)
	protected.POST("/messages/:messageID/quiz", cfg.MessageHandler.SubmitQuiz)

	// Profile
	protected.GET("/profile", cfg.ProfileHandler.Get)
	protected.PATCH("/profile", cfg.ProfileHandler.Update)
	protected.GET("/events", cfg.ProfileHandler.Events)

	return router
}
