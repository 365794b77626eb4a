package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"billiard-pos-backend/internal/store"
)

const defaultHistoryLimit = 200

// GetHistory handles GET /api/history with optional table_id, from, to
// (RFC3339) and limit query parameters.
func (h *Handler) GetHistory(c *gin.Context) {
	filter := store.HistoryFilter{
		TableID: c.Query("table_id"),
		Limit:   defaultHistoryLimit,
	}

	if v := c.Query("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' timestamp, use RFC3339"})
			return
		}
		filter.From = &ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' timestamp, use RFC3339"})
			return
		}
		filter.To = &ts
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit'"})
			return
		}
		filter.Limit = n
	}

	records, err := h.store.ListHistory(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}
