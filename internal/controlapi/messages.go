package controlapi

import (
	"net/http"
	"strconv"

	"sousvide_simulator/internal/models"

	"github.com/gin-gonic/gin"
)

const defaultMessageLimit = 100

// @Summary      Read the message-log tail
// @Tags         control
// @Produce      json
// @Param        limit      query  int     false  "max messages to return (default 100)"
// @Param        direction  query  string  false  "inbound, outbound or all"
// @Success      200  {object}  map[string]interface{}  "count, messages"
// @Failure      400  {object}  map[string]string  "INVALID_LIMIT"
// @Failure      500  {object}  map[string]string
// @Router       /messages [get]
func (h *Handler) getMessages(c *gin.Context) {
	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.jsonError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a number", err)
			return
		}
		limit = n
	}

	direction := c.DefaultQuery("direction", "all")
	if direction == "all" {
		direction = ""
	}

	msgs, err := h.messages.Tail(c.Request.Context(), limit, direction)
	if err != nil {
		h.jsonError(c, http.StatusInternalServerError, "GET_MESSAGES_FAILED", "failed to load messages", err)
		return
	}
	if msgs == nil {
		msgs = []models.MessageLogEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(msgs),
		"messages": msgs,
	})
}
