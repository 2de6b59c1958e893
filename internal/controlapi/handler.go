package controlapi

import (
	"sousvide_simulator/internal/device"
	"sousvide_simulator/internal/faults"
	"sousvide_simulator/internal/logger"
	"sousvide_simulator/internal/repository"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Sessions is the slice of the protocol server the control plane drives:
// pushing state after a mutation, force-closing clients, and counting them
// for the health probe.
type Sessions interface {
	BroadcastState()
	DisconnectAll(code int, reason string)
	SessionCount() int
}

// Handler wires the test-control HTTP layer to the device, the fault
// injector, the protocol sessions and the message log.
type Handler struct {
	dev      *device.Device
	injector *faults.Injector
	sessions Sessions
	messages repository.MessageLog
	log      *logger.Logger
}

// NewHandler constructs a control API handler with dependencies.
func NewHandler(dev *device.Device, injector *faults.Injector, sessions Sessions, messages repository.MessageLog, log *logger.Logger) *Handler {
	return &Handler{
		dev:      dev,
		injector: injector,
		sessions: sessions,
		messages: messages,
		log:      log,
	}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Mutations
	router.POST("/reset", h.reset)
	router.POST("/set-state", h.setState)
	router.POST("/set-offline", h.setOffline)
	router.POST("/set-time-scale", h.setTimeScale)
	router.POST("/trigger-error", h.triggerError)
	router.POST("/clear-error", h.clearError)

	// Reads
	router.GET("/state", h.getState)
	router.GET("/messages", h.getMessages)
	router.GET("/errors", h.getErrors)
	router.GET("/health", h.health)

	return router
}

// Centralized error response. err is logged when present; the client only
// sees the stable code and message.
func (h *Handler) jsonError(c *gin.Context, httpCode int, code, msg string, err error) {
	if h.log != nil && err != nil {
		h.log.Errorw("control_api_error", "code", code, "err", err)
	}
	c.JSON(httpCode, gin.H{
		"error":   code,
		"message": msg,
	})
}
