package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/quiz"
	"github.com/lumalearn/luma-backend/internal/requestdata"
	"github.com/lumalearn/luma-backend/internal/services"
)

type MessageHandler struct {
	log          *logger.Logger
	tutorService services.TutorService
	quizService  services.QuizService
}

func NewMessageHandler(log *logger.Logger, tutorService services.TutorService, quizService services.QuizService) *MessageHandler {
	return &MessageHandler{
		log:          log.With("handler", "MessageHandler"),
		tutorService: tutorService,
		quizService:  quizService,
	}
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) Send(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	convID, err := uuid.Parse(c.Param("conversationID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	msg, hasQuiz, err := h.tutorService.SendMessage(c.Request.Context(), userID, convID, req.Content)
	if err != nil {
		RespondAppError(c, "send_message_failed", err)
		return
	}
	RespondOK(c, gin.H{"message": msg, "hasQuiz": hasQuiz})
}

type submitQuizRequest struct {
	Answers []quiz.Answer `json:"answers"`
}

func (h *MessageHandler) SubmitQuiz(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	messageID, err := uuid.Parse(c.Param("messageID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_message_id", err)
		return
	}
	var req submitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	msg, err := h.quizService.SubmitResponses(c.Request.Context(), userID, messageID, req.Answers)
	if err != nil {
		RespondAppError(c, "submit_quiz_failed", err)
		return
	}
	RespondOK(c, gin.H{"message": msg})
}
