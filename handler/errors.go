package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/pkg/logger"
	"github.com/recorpproduction-prog/camcapprod/service"
	"github.com/recorpproduction-prog/camcapprod/storage"
	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

const quotaMessage = "Local storage is full. Clear the export history or delete old drafts, then try again."

// statusOf maps service and storage errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrSOPNotFound),
		errors.Is(err, service.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrRequestStarted):
		return http.StatusConflict
	case errors.Is(err, service.ErrReviewerRequired),
		errors.Is(err, service.ErrReviewDateRequired),
		errors.Is(err, service.ErrCommentsRequired),
		errors.Is(err, service.ErrInvalidFilter),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrQuotaExceeded),
		errors.Is(err, kv.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, storage.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrAuthentication),
		errors.Is(err, storage.ErrConfiguration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": ...} with the mapped status. Server-side
// failures are logged.
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	switch {
	case status == http.StatusInsufficientStorage:
		msg = quotaMessage
	case status >= 500:
		logger.Error(c.Request.Context(), "request failed", "error", err, "status", status)
	}
	c.JSON(status, gin.H{"error": msg})
}
