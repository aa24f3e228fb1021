package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/requestdata"
	"github.com/lumalearn/luma-backend/internal/services"
)

type SpaceHandler struct {
	log          *logger.Logger
	spaceService services.SpaceService
}

func NewSpaceHandler(log *logger.Logger, spaceService services.SpaceService) *SpaceHandler {
	return &SpaceHandler{
		log:          log.With("handler", "SpaceHandler"),
		spaceService: spaceService,
	}
}

type createSpaceRequest struct {
	Name  string `json:"name"`
	Topic string `json:"topic"`
	Goal  string `json:"goal"`
}

func (h *SpaceHandler) Create(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	var req createSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	space, err := h.spaceService.Create(c.Request.Context(), userID, req.Name, req.Topic, req.Goal)
	if err != nil {
		RespondAppError(c, "create_space_failed", err)
		return
	}
	RespondOK(c, gin.H{"space": space})
}

func (h *SpaceHandler) List(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	spaces, err := h.spaceService.List(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("List spaces failed", "error", err, "user_id", userID)
		RespondAppError(c, "list_spaces_failed", err)
		return
	}
	RespondOK(c, gin.H{"spaces": spaces})
}

func (h *SpaceHandler) Get(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	spaceID, err := uuid.Parse(c.Param("spaceID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_space_id", err)
		return
	}
	space, err := h.spaceService.Get(c.Request.Context(), userID, spaceID)
	if err != nil {
		RespondAppError(c, "get_space_failed", err)
		return
	}
	RespondOK(c, gin.H{"space": space})
}

func (h *SpaceHandler) Delete(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	spaceID, err := uuid.Parse(c.Param("spaceID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_space_id", err)
		return
	}
	if err := h.spaceService.Delete(c.Request.Context(), userID, spaceID); err != nil {
		RespondAppError(c, "delete_space_failed", err)
		return
	}
	RespondOK(c, gin.H{"deleted": spaceID})
}
