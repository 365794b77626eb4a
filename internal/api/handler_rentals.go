package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"billiard-pos-backend/internal/rental"
)

type startRentalRequest struct {
	Customer string `json:"customer"`
	Minutes  int    `json:"minutes" binding:"required"`
}

// StartRental handles POST /api/tables/:id/start. The HTTP status reflects
// the store transition alone; lamp delivery is best effort and reported
// nowhere but the logs.
func (h *Handler) StartRental(c *gin.Context) {
	var req startRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.rentals.Start(c.Request.Context(), c.Param("id"), req.Customer, req.Minutes)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTableResponse(t, 0, time.Now()))
}

type topUpRequest struct {
	Minutes int `json:"minutes" binding:"required"`
}

// TopUpRental handles POST /api/tables/:id/topup.
func (h *Handler) TopUpRental(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.rentals.TopUp(c.Request.Context(), c.Param("id"), req.Minutes)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTableResponse(t, 0, time.Now()))
}

// StopRental handles POST /api/tables/:id/stop. Remaining time is forfeited.
func (h *Handler) StopRental(c *gin.Context) {
	t, err := h.rentals.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTableResponse(t, 0, time.Now()))
}

type moveRentalRequest struct {
	To string `json:"to" binding:"required"`
}

// MoveRental handles POST /api/tables/:id/move. A partial move is reported
// as a 500 with an explicit marker so the front desk knows to reconcile.
func (h *Handler) MoveRental(c *gin.Context) {
	var req moveRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.rentals.Move(c.Request.Context(), c.Param("id"), req.To)
	if errors.Is(err, rental.ErrPartialMove) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":          err.Error(),
			"reconciliation": "destination is occupied but the origin was not cleared",
		})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTableResponse(t, 0, time.Now()))
}
