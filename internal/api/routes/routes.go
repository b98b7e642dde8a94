// Package routes wires the HTTP surface.
package routes

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"github.com/custody-service/custody_service/internal/api/handlers"
	"github.com/custody-service/custody_service/internal/api/middleware"
	"github.com/custody-service/custody_service/internal/domain/services/otc"
	"github.com/custody-service/custody_service/internal/domain/services/transaction"
	"github.com/custody-service/custody_service/internal/domain/services/twofa"
	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/ratelimit"
)

// Services bundles everything the router needs.
type Services struct {
	DB           *sql.DB
	Transactions *transaction.Service
	Otc          *otc.Service
	TwoFA        *twofa.Service
	Limiter      *ratelimit.Limiter
	Logger       *logger.Logger
}

// Setup builds the gin engine with all routes registered
func Setup(s Services) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(s.Logger), middleware.Metrics())

	core := handlers.NewCoreHandlers(s.DB, s.Logger)
	router.GET("/health", core.Health)
	router.GET("/health/live", core.Live)
	router.GET("/version", core.Version)
	router.GET("/metrics", core.Metrics)

	txh := handlers.NewTransactionHandlers(s.Transactions, s.Logger)
	otch := handlers.NewOtcHandlers(s.Otc, s.Logger)
	tfh := handlers.NewTwoFAHandlers(s.TwoFA, s.Logger)

	v1 := router.Group("/api/v1")
	{
		// Fiat deposits come from the back office, not an account holder.
		v1.POST("/fiat-deposits", txh.FiatDeposit)

		authed := v1.Group("", middleware.RequireAccount(), middleware.RateLimit(s.Limiter))
		{
			authed.POST("/withdrawals", txh.Withdraw)
			authed.POST("/transfers", txh.Transfer)
			authed.GET("/transactions", txh.History)

			authed.POST("/otc/quote", otch.Quote)
			authed.POST("/otc/orders", otch.PlaceOrder)
			authed.GET("/otc/orders", otch.ListOrders)
			authed.GET("/otc/orders/:id", otch.GetOrder)
			authed.DELETE("/otc/orders/:id", otch.CancelOrder)

			authed.POST("/2fa/setup", tfh.Setup)
			authed.POST("/2fa/enable", tfh.Enable)
			authed.POST("/2fa/disable", tfh.Disable)
		}
	}

	return router
}
