package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumalearn/luma-backend/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	user, token, err := h.authService.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		RespondAppError(c, "register_failed", err)
		return
	}
	RespondOK(c, gin.H{"user": user, "token": token})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	user, token, err := h.authService.Refresh(c.Request.Context())
	if err != nil {
		RespondAppError(c, "refresh_failed", err)
		return
	}
	RespondOK(c, gin.H{"user": user, "token": token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	user, token, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondAppError(c, "login_failed", err)
		return
	}
	RespondOK(c, gin.H{"user": user, "token": token})
}
