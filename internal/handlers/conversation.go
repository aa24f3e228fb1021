package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/requestdata"
	"github.com/lumalearn/luma-backend/internal/services"
)

type ConversationHandler struct {
	log         *logger.Logger
	convService services.ConversationService
}

func NewConversationHandler(log *logger.Logger, convService services.ConversationService) *ConversationHandler {
	return &ConversationHandler{
		log:         log.With("handler", "ConversationHandler"),
		convService: convService,
	}
}

// Start returns the space's active conversation, creating one when none
// is open.
func (h *ConversationHandler) Start(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	spaceID, err := uuid.Parse(c.Param("spaceID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_space_id", err)
		return
	}
	conv, err := h.convService.GetOrCreateActive(c.Request.Context(), userID, spaceID)
	if err != nil {
		RespondAppError(c, "start_conversation_failed", err)
		return
	}
	RespondOK(c, gin.H{"conversation": conv})
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	spaceID, err := uuid.Parse(c.Param("spaceID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_space_id", err)
		return
	}
	convs, err := h.convService.List(c.Request.Context(), userID, spaceID)
	if err != nil {
		RespondAppError(c, "list_conversations_failed", err)
		return
	}
	RespondOK(c, gin.H{"conversations": convs})
}

func (h *ConversationHandler) Get(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	convID, err := uuid.Parse(c.Param("conversationID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	conv, msgs, err := h.convService.Get(c.Request.Context(), userID, convID)
	if err != nil {
		RespondAppError(c, "get_conversation_failed", err)
		return
	}
	RespondOK(c, gin.H{"conversation": conv, "messages": msgs})
}

func (h *ConversationHandler) End(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	convID, err := uuid.Parse(c.Param("conversationID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	if err := h.convService.End(c.Request.Context(), userID, convID); err != nil {
		RespondAppError(c, "end_conversation_failed", err)
		return
	}
	RespondOK(c, gin.H{"ended": convID})
}
