package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumalearn/luma-backend/internal/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondAppError maps the service sentinels to HTTP statuses. Anything
// unrecognized is a 500.
func RespondAppError(c *gin.Context, code string, err error) {
	switch {
	case apperr.IsValidation(err):
		RespondError(c, http.StatusBadRequest, code, err)
	case apperr.IsUnauthorized(err):
		RespondError(c, http.StatusUnauthorized, code, err)
	case apperr.IsNotFound(err):
		RespondError(c, http.StatusNotFound, code, err)
	case apperr.IsConflict(err):
		RespondError(c, http.StatusConflict, code, err)
	case apperr.IsRetryable(err):
		RespondError(c, http.StatusBadGateway, code, err)
	default:
		RespondError(c, http.StatusInternalServerError, code, err)
	}
}
