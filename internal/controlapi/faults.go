package controlapi

import (
	"fmt"
	"net/http"

	"sousvide_simulator/internal/faults"

	"github.com/gin-gonic/gin"
)

// Request DTO for triggering and clearing fault conditions.
type faultRequest struct {
	ErrorType   string   `json:"error_type"`
	Duration    *float64 `json:"duration"`
	LatencyMS   *int     `json:"latency_ms"`
	FailureRate *float64 `json:"failure_rate"`
}

// parseFault validates the common error_type field; on failure it has
// already written the response.
func (h *Handler) parseFault(c *gin.Context) (faults.Kind, faultRequest, bool) {
	var req faultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, http.StatusBadRequest, "INVALID_JSON", errInvalidJSON, err)
		return "", req, false
	}
	if req.ErrorType == "" {
		h.jsonError(c, http.StatusBadRequest, "MISSING_ERROR_TYPE", "error_type is required", nil)
		return "", req, false
	}
	kind, ok := faults.ParseKind(req.ErrorType)
	if !ok {
		h.jsonError(c, http.StatusBadRequest, "INVALID_ERROR_TYPE",
			fmt.Sprintf("Invalid error_type. Must be one of: %v", faults.Kinds()), nil)
		return "", req, false
	}
	return kind, req, true
}

// @Summary      Trigger a fault condition
// @Tags         faults
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status plus fault parameters"
// @Failure      400  {object}  map[string]string  "MISSING_ERROR_TYPE or INVALID_ERROR_TYPE"
// @Failure      500  {object}  map[string]string
// @Router       /trigger-error [post]
func (h *Handler) triggerError(c *gin.Context) {
	kind, req, ok := h.parseFault(c)
	if !ok {
		return
	}

	duration := 0.0
	if req.Duration != nil {
		duration = *req.Duration
	}
	status, err := h.injector.Trigger(kind, duration, faults.Params{
		LatencyMS:   req.LatencyMS,
		FailureRate: req.FailureRate,
	})
	if err != nil {
		h.jsonError(c, http.StatusInternalServerError, "TRIGGER_ERROR_FAILED", err.Error(), err)
		return
	}

	h.log.Infow("fault_triggered", "error_type", kind, "duration", duration)
	c.JSON(http.StatusOK, gin.H{
		"status":       "triggered",
		"error_type":   status.Kind,
		"duration":     status.Duration,
		"latency_ms":   status.LatencyMS,
		"failure_rate": status.FailureRate,
	})
}

// @Summary      Clear a fault condition
// @Tags         faults
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /clear-error [post]
func (h *Handler) clearError(c *gin.Context) {
	kind, _, ok := h.parseFault(c)
	if !ok {
		return
	}

	if err := h.injector.Clear(kind); err != nil {
		h.jsonError(c, http.StatusInternalServerError, "CLEAR_ERROR_FAILED", err.Error(), err)
		return
	}

	h.log.Infow("fault_cleared", "error_type", kind)
	c.JSON(http.StatusOK, gin.H{
		"status":     "cleared",
		"error_type": kind,
	})
}

// @Summary      List active fault conditions
// @Tags         faults
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "active_errors, errors"
// @Router       /errors [get]
func (h *Handler) getErrors(c *gin.Context) {
	active := h.injector.Active()

	names := make([]faults.Kind, 0, len(active))
	for _, s := range active {
		names = append(names, s.Kind)
	}
	c.JSON(http.StatusOK, gin.H{
		"active_errors": names,
		"errors":        active,
	})
}
