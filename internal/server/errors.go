package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/studyloop/studyloop/internal/account/domain"
	generationdomain "github.com/studyloop/studyloop/internal/generation/domain"
	ledgerdomain "github.com/studyloop/studyloop/internal/ledger/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusServiceUnavailable && errors.Is(lastErr.Err, generationdomain.ErrCapacityExceeded) {
			c.Header("Retry-After", "10")
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, accountdomain.ErrInvalidCaller),
		errors.Is(err, ledgerdomain.ErrInvalidCaller),
		errors.Is(err, generationdomain.ErrInvalidPrompt):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "invalid request",
		}
	case errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "caller not found",
		}
	case errors.Is(err, generationdomain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "quota_exceeded",
			Message: "monthly token quota exceeded; add your own key or upgrade",
		}
	case errors.Is(err, generationdomain.ErrCapacityExceeded):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "capacity_exceeded",
			Message: "shared capacity exhausted, retry later",
		}
	case errors.Is(err, generationdomain.ErrNoSecondaryCredential):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "no_credential",
			Message: "no generation credential configured for this caller",
		}
	case errors.Is(err, generationdomain.ErrUpstream):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "upstream provider error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
