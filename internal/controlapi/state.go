package controlapi

import (
	"net/http"
	"strings"

	"sousvide_simulator/internal/device"
	"sousvide_simulator/internal/faults"
	"sousvide_simulator/internal/models"

	"github.com/gin-gonic/gin"
)

// Response status constants to avoid magic strings and typos.
const (
	statusOK      = "ok"
	statusReset   = "reset"
	statusUpdated = "updated"
	statusOffline = "offline"
	statusOnline  = "online"
)

const (
	errInvalidJSON  = "Invalid JSON body"
	validStatesHint = "Must be one of: IDLE, PREHEATING, COOKING, DONE"
)

// Request DTO for partial state overrides. All fields optional; only
// supplied ones are written.
type setStateRequest struct {
	State             *string  `json:"state"`
	Temperature       *float64 `json:"temperature"`
	TargetTemperature *float64 `json:"target_temperature"`
	Timer             *int     `json:"timer"`
	TimerRemaining    *int     `json:"timer_remaining"`
}

type setOfflineRequest struct {
	Offline *bool `json:"offline"`
}

type setTimeScaleRequest struct {
	TimeScale *float64 `json:"time_scale"`
}

// stateResponse is the full snapshot plus the acceleration factor.
type stateResponse struct {
	models.CookerState
	TimeScale float64 `json:"time_scale"`
}

// @Summary      Reset simulator to initial state
// @Tags         control
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state, temperature"
// @Failure      500  {object}  map[string]string
// @Router       /reset [post]
func (h *Handler) reset(c *gin.Context) {
	h.dev.Reset()
	snap := h.dev.Snapshot()

	h.log.Infow("simulator_reset")
	c.JSON(http.StatusOK, gin.H{
		"status":      statusReset,
		"state":       snap.JobStatus.State,
		"temperature": snap.TemperatureInfo.WaterTemperature,
	})
}

// @Summary      Force-set device state fields
// @Tags         control
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string  "INVALID_JSON or INVALID_STATE"
// @Router       /set-state [post]
func (h *Handler) setState(c *gin.Context) {
	var req setStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, http.StatusBadRequest, "INVALID_JSON", errInvalidJSON, err)
		return
	}

	if req.State != nil {
		upper := strings.ToUpper(*req.State)
		req.State = &upper
	}
	if err := h.dev.ForceState(device.ForceUpdate{
		State:             req.State,
		Temperature:       req.Temperature,
		TargetTemperature: req.TargetTemperature,
		Timer:             req.Timer,
		TimerRemaining:    req.TimerRemaining,
	}); err != nil {
		h.jsonError(c, http.StatusBadRequest, "INVALID_STATE",
			"Invalid state: "+strings.ToUpper(stringOr(req.State))+". "+validStatesHint, err)
		return
	}

	// Sessions see the override as if the device itself had changed.
	h.sessions.BroadcastState()

	snap := h.dev.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":             statusUpdated,
		"state":              snap.JobStatus.State,
		"temperature":        snap.TemperatureInfo.WaterTemperature,
		"target_temperature": snap.Job.TargetTemperature,
		"timer_remaining":    snap.JobStatus.CookTimeRemaining,
	})
}

func stringOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// @Summary      Take the device offline or bring it back
// @Tags         control
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, clients_disconnected"
// @Failure      400  {object}  map[string]string
// @Router       /set-offline [post]
func (h *Handler) setOffline(c *gin.Context) {
	var req setOfflineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, http.StatusBadRequest, "INVALID_JSON", errInvalidJSON, err)
		return
	}

	offline := true
	if req.Offline != nil {
		offline = *req.Offline
	}

	if offline {
		h.sessions.DisconnectAll(faults.CloseOffline, "Device offline")
		h.dev.SetOnline(false)
		h.log.Infow("simulator_offline")
	} else {
		h.dev.SetOnline(true)
		h.log.Infow("simulator_online")
	}

	status := statusOnline
	if offline {
		status = statusOffline
	}
	c.JSON(http.StatusOK, gin.H{
		"status":               status,
		"clients_disconnected": h.sessions.SessionCount() == 0,
	})
}

// @Summary      Change the virtual-time acceleration factor
// @Tags         control
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, time_scale"
// @Failure      400  {object}  map[string]string  "MISSING_TIME_SCALE or INVALID_TIME_SCALE"
// @Router       /set-time-scale [post]
func (h *Handler) setTimeScale(c *gin.Context) {
	var req setTimeScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, http.StatusBadRequest, "INVALID_JSON", errInvalidJSON, err)
		return
	}
	if req.TimeScale == nil {
		h.jsonError(c, http.StatusBadRequest, "MISSING_TIME_SCALE", "time_scale is required", nil)
		return
	}
	if err := h.dev.SetTimeScale(*req.TimeScale); err != nil {
		h.jsonError(c, http.StatusBadRequest, "INVALID_TIME_SCALE", "time_scale must be positive", err)
		return
	}

	h.log.Infow("time_scale_set", "time_scale", *req.TimeScale)
	c.JSON(http.StatusOK, gin.H{
		"status":     statusUpdated,
		"time_scale": *req.TimeScale,
	})
}

// @Summary      Read the full device state snapshot
// @Tags         control
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /state [get]
func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, stateResponse{
		CookerState: h.dev.Snapshot(),
		TimeScale:   h.dev.TimeScale(),
	})
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            statusOK,
		"service":           "control-api",
		"simulator_state":   h.dev.State(),
		"clients_connected": h.sessions.SessionCount(),
	})
}
