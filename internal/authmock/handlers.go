package authmock

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sousvide_simulator/internal/logger"
)

// Handler serves the mock identity endpoints clients authenticate against
// before opening a protocol session.
type Handler struct {
	service *Service
	log     *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Router registers the identity-provider-shaped routes.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/v1/accounts:signInWithPassword", h.signIn)
	router.POST("/v1/token", h.refresh)
	router.GET("/health", h.health)
	return router
}

type signInRequest struct {
	Email             string `json:"email" binding:"required"`
	Password          string `json:"password" binding:"required"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// authError mirrors the upstream identity API's error envelope.
func authError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    status,
			"message": message,
		},
	})
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		authError(c, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	creds, err := h.service.SignIn(req.Email, req.Password)
	if err != nil {
		if h.log != nil {
			h.log.Infow("sign_in_rejected", "email", req.Email, "reason", err)
		}
		authError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":         "identitytoolkit#VerifyPasswordResponse",
		"localId":      creds.UserID,
		"email":        creds.Email,
		"idToken":      creds.IDToken,
		"registered":   true,
		"refreshToken": creds.RefreshToken,
		"expiresIn":    strconv.Itoa(creds.ExpiresIn),
	})
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		authError(c, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.GrantType != "" && req.GrantType != "refresh_token" {
		authError(c, http.StatusBadRequest, "INVALID_GRANT_TYPE")
		return
	}

	creds, err := h.service.Refresh(req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			authError(c, http.StatusBadRequest, err.Error())
			return
		}
		authError(c, http.StatusInternalServerError, "TOKEN_REFRESH_FAILED")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  creds.IDToken,
		"expires_in":    strconv.Itoa(creds.ExpiresIn),
		"token_type":    "Bearer",
		"refresh_token": creds.RefreshToken,
		"id_token":      creds.IDToken,
		"user_id":       creds.UserID,
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth-mock"})
}
