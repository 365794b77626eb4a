package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"billiard-pos-backend/internal/lamp"
	"billiard-pos-backend/internal/model"
)

// tableResponse is the flattened structure for the API response. Timing
// fields are exposed as epoch milliseconds and omitted entirely while the
// table is available.
type tableResponse struct {
	model.Table
	StartTime        *int64 `json:"startTime,omitempty"`
	EndTime          *int64 `json:"endTime,omitempty"`
	RemainingSeconds int    `json:"remainingSeconds"`
	LampChannel      int    `json:"lampChannel"`
}

func toTableResponse(t model.Table, position int, now time.Time) tableResponse {
	resp := tableResponse{
		Table:            t,
		RemainingSeconds: int(t.RemainingAt(now).Seconds()),
		LampChannel:      lamp.ResolveChannel(t.Channel, t.Name, position),
	}
	if t.StartTime != nil {
		ms := t.StartTime.UnixMilli()
		resp.StartTime = &ms
	}
	if t.EndTime != nil {
		ms := t.EndTime.UnixMilli()
		resp.EndTime = &ms
	}
	return resp
}

// GetTables handles GET /api/tables.
func (h *Handler) GetTables(c *gin.Context) {
	tables, err := h.store.ListTables(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	now := time.Now()
	resp := make([]tableResponse, 0, len(tables))
	for i, t := range tables {
		resp = append(resp, toTableResponse(t, i, now))
	}
	c.JSON(http.StatusOK, resp)
}

type createTableRequest struct {
	Name         string  `json:"name" binding:"required"`
	CostPerHour  float64 `json:"costPerHour" binding:"required,gt=0"`
	Channel      int     `json:"channel"`
	RemoteOn     string  `json:"remoteOn"`
	RemoteOff    string  `json:"remoteOff"`
	RemoteToggle string  `json:"remoteToggle"`
}

// CreateTable handles POST /api/tables. New tables start available with no
// timing fields.
func (h *Handler) CreateTable(c *gin.Context) {
	var req createTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := model.Table{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Channel:      req.Channel,
		Status:       model.StatusAvailable,
		CostPerHour:  req.CostPerHour,
		RemoteOn:     req.RemoteOn,
		RemoteOff:    req.RemoteOff,
		RemoteToggle: req.RemoteToggle,
	}
	if err := h.store.CreateTable(c.Request.Context(), &t); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTableResponse(t, 0, time.Now()))
}

type updateTableRequest struct {
	Name         *string  `json:"name"`
	CostPerHour  *float64 `json:"costPerHour"`
	Channel      *int     `json:"channel"`
	RemoteOn     *string  `json:"remoteOn"`
	RemoteOff    *string  `json:"remoteOff"`
	RemoteToggle *string  `json:"remoteToggle"`
}

// UpdateTable handles PATCH /api/tables/:id. Only administrative fields are
// writable here; a rate change never touches an in-progress rental's already
// computed end time.
func (h *Handler) UpdateTable(c *gin.Context) {
	var req updateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := make(map[string]any)
	if req.Name != nil {
		if *req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
			return
		}
		fields["name"] = *req.Name
	}
	if req.CostPerHour != nil {
		if *req.CostPerHour <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "costPerHour must be positive"})
			return
		}
		fields["cost_per_hour"] = *req.CostPerHour
	}
	if req.Channel != nil {
		fields["channel"] = *req.Channel
	}
	if req.RemoteOn != nil {
		fields["remote_on"] = *req.RemoteOn
	}
	if req.RemoteOff != nil {
		fields["remote_off"] = *req.RemoteOff
	}
	if req.RemoteToggle != nil {
		fields["remote_toggle"] = *req.RemoteToggle
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	updated, err := h.store.UpdateTableFields(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTableResponse(updated, 0, time.Now()))
}

// DeleteTable handles DELETE /api/tables/:id. Tables may be deleted in any
// state.
func (h *Handler) DeleteTable(c *gin.Context) {
	if err := h.store.DeleteTable(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
