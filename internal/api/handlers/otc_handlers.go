package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/api/middleware"
	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/domain/services/otc"
	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
)

// OtcHandlers serves the OTC desk endpoints
type OtcHandlers struct {
	service *otc.Service
	logger  *logger.Logger
}

// NewOtcHandlers creates a new OTC handlers instance
func NewOtcHandlers(service *otc.Service, logger *logger.Logger) *OtcHandlers {
	return &OtcHandlers{
		service: service,
		logger:  logger,
	}
}

type quoteRequest struct {
	Type   entities.OtcOrderType `json:"type" binding:"required"`
	Amount decimal.Decimal       `json:"amount" binding:"required"`
}

// Quote handles POST /api/v1/otc/quote
func (h *OtcHandlers) Quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), req.Type, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

type placeOrderRequest struct {
	Type     entities.OtcOrderType `json:"type" binding:"required"`
	Network  entities.Network      `json:"network" binding:"required"`
	Amount   decimal.Decimal       `json:"amount" binding:"required"`
	Price    decimal.Decimal       `json:"price" binding:"required"`
	PreOrder bool                  `json:"pre_order"`
}

// PlaceOrder handles POST /api/v1/otc/orders
func (h *OtcHandlers) PlaceOrder(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.service.PlaceOrder(c.Request.Context(), otc.PlaceOrderRequest{
		UserID:   accountID,
		Type:     req.Type,
		Network:  req.Network,
		Amount:   req.Amount,
		Price:    req.Price,
		PreOrder: req.PreOrder,
	})
	if err != nil {
		if order != nil {
			metrics.OtcOrdersTotal.WithLabelValues(string(req.Type), string(order.Status)).Inc()
		}
		respondError(c, err)
		return
	}

	metrics.OtcOrdersTotal.WithLabelValues(string(req.Type), string(order.Status)).Inc()
	c.JSON(http.StatusCreated, order)
}

// CancelOrder handles DELETE /api/v1/otc/orders/:id
func (h *OtcHandlers) CancelOrder(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if err := h.service.CancelOrder(c.Request.Context(), accountID, orderID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// GetOrder handles GET /api/v1/otc/orders/:id
func (h *OtcHandlers) GetOrder(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), accountID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /api/v1/otc/orders
func (h *OtcHandlers) ListOrders(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not identified"})
		return
	}

	orders, err := h.service.ListOrders(c.Request.Context(), accountID, 50)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}
