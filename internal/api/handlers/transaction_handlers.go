package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/api/middleware"
	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/domain/services/transaction"
	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
)

// TransactionHandlers serves withdrawal, transfer and fiat deposit requests
type TransactionHandlers struct {
	service *transaction.Service
	logger  *logger.Logger
}

// NewTransactionHandlers creates a new transaction handlers instance
func NewTransactionHandlers(service *transaction.Service, logger *logger.Logger) *TransactionHandlers {
	return &TransactionHandlers{
		service: service,
		logger:  logger,
	}
}

type withdrawRequest struct {
	Network   entities.Network `json:"network" binding:"required"`
	ToAddress string           `json:"to_address" binding:"required"`
	Amount    decimal.Decimal  `json:"amount" binding:"required"`
	TwoFACode string           `json:"two_fa_code"`
}

// Withdraw handles POST /api/v1/withdrawals
func (h *TransactionHandlers) Withdraw(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Withdraw(c.Request.Context(), accountID, req.Network, req.ToAddress, req.Amount, req.TwoFACode)
	if err != nil {
		metrics.WithdrawalsTotal.WithLabelValues(string(req.Network), "failed").Inc()
		respondError(c, err)
		return
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(req.Network), "success").Inc()
	c.JSON(http.StatusOK, result)
}

type transferRequest struct {
	Network   entities.Network `json:"network" binding:"required"`
	ToAddress string           `json:"to_address" binding:"required"`
	Amount    decimal.Decimal  `json:"amount" binding:"required"`
}

// Transfer handles POST /api/v1/transfers
func (h *TransactionHandlers) Transfer(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.service.Transfer(c.Request.Context(), accountID, req.Network, req.ToAddress, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entry_id": entry.ID,
		"tx_id":    entry.TxID,
		"amount":   entry.Amount,
		"status":   entry.Status,
	})
}

type fiatDepositRequest struct {
	AccountID uuid.UUID       `json:"account_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

// FiatDeposit handles POST /api/v1/fiat-deposits. Admin surface: the
// account is named in the body, not taken from the caller identity.
func (h *TransactionHandlers) FiatDeposit(c *gin.Context) {
	var req fiatDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.service.FiatDeposit(c.Request.Context(), req.AccountID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entry_id": entry.ID,
		"amount":   entry.Amount,
		"status":   entry.Status,
	})
}

// History handles GET /api/v1/transactions?network=ERC20
func (h *TransactionHandlers) History(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	network := entities.Network(c.Query("network"))
	if err := network.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown network"})
		return
	}

	entries, err := h.service.History(c.Request.Context(), accountID, network, 50)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}
