package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lumalearn/luma-backend/internal/logger"
	"github.com/lumalearn/luma-backend/internal/requestdata"
	"github.com/lumalearn/luma-backend/internal/services"
)

type ProfileHandler struct {
	log            *logger.Logger
	profileService services.ProfileService
	eventService   services.LearningEventService
}

func NewProfileHandler(log *logger.Logger, profileService services.ProfileService, eventService services.LearningEventService) *ProfileHandler {
	return &ProfileHandler{
		log:            log.With("handler", "ProfileHandler"),
		profileService: profileService,
		eventService:   eventService,
	}
}

func (h *ProfileHandler) Get(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	profile, err := h.profileService.Get(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("Get profile failed", "error", err, "user_id", userID)
		RespondAppError(c, "get_profile_failed", err)
		return
	}
	RespondOK(c, gin.H{"profile": profile})
}

func (h *ProfileHandler) Update(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	var req services.ProfileUpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	profile, err := h.profileService.Update(c.Request.Context(), userID, req)
	if err != nil {
		RespondAppError(c, "update_profile_failed", err)
		return
	}
	RespondOK(c, gin.H{"profile": profile})
}

func (h *ProfileHandler) Events(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	events, err := h.eventService.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		h.log.Error("List events failed", "error", err, "user_id", userID)
		RespondAppError(c, "list_events_failed", err)
		return
	}
	RespondOK(c, gin.H{"events": events})
}
