package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/services"
)

// statusForError maps service sentinel errors to HTTP statuses.
func statusForError(err error) int {
	switch {
	case services.IsNotFound(err):
		return http.StatusNotFound
	case services.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, services.ErrLimitExceeded),
		errors.Is(err, services.ErrCardInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrSettlementFailed),
		errors.Is(err, services.ErrPartialAllocation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error response for a failed service call. Service
// sentinels surface their own message; anything else is an internal error the
// client gets a generic line for.
func abortWithError(c *gin.Context, err error, fallback string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
