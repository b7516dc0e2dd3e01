package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dorm-laundry-backend/internal/state"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   *state.Store
	db      *gorm.DB
	webpush *webpush.Options
	logger  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(store *state.Store, db *gorm.DB, webpushOptions *webpush.Options, logger *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		db:      db,
		webpush: webpushOptions,
		logger:  logger,
	}
}

// fail maps a state error to an HTTP status and writes the error payload.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, state.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, state.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, state.ErrConflict), errors.Is(err, state.ErrAlreadyActive):
		status = http.StatusConflict
	case errors.Is(err, state.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
