package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"billiard-pos-backend/internal/rental"
	"billiard-pos-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	rentals *rental.Service
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, rentals *rental.Service, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		rentals: rentals,
		webpush: webpushOptions,
	}
}

// abortWithError maps service and store errors onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrTableNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "table not found"})
	case errors.Is(err, rental.ErrInvalidDuration):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, rental.ErrTableOccupied),
		errors.Is(err, rental.ErrTableNotOccupied),
		errors.Is(err, rental.ErrSameTable),
		errors.Is(err, rental.ErrDestinationOccupied),
		errors.Is(err, store.ErrStateChanged):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
