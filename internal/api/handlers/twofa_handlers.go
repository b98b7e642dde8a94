package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custody-service/custody_service/internal/api/middleware"
	"github.com/custody-service/custody_service/internal/domain/services/twofa"
	"github.com/custody-service/custody_service/pkg/logger"
)

// TwoFAHandlers serves 2FA enrollment endpoints
type TwoFAHandlers struct {
	service *twofa.Service
	logger  *logger.Logger
}

// NewTwoFAHandlers creates a new 2FA handlers instance
func NewTwoFAHandlers(service *twofa.Service, logger *logger.Logger) *TwoFAHandlers {
	return &TwoFAHandlers{
		service: service,
		logger:  logger,
	}
}

type setupRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// Setup handles POST /api/v1/2fa/setup
func (h *TwoFAHandlers) Setup(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	setup, err := h.service.GenerateSecret(c.Request.Context(), accountID, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, setup)
}

type codeRequest struct {
	Code string `json:"code" binding:"required"`
}

// Enable handles POST /api/v1/2fa/enable
func (h *TwoFAHandlers) Enable(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.VerifyAndEnable(c.Request.Context(), accountID, req.Code); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

// Disable handles POST /api/v1/2fa/disable
func (h *TwoFAHandlers) Disable(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Disable(c.Request.Context(), accountID, req.Code); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "disabled"})
}
