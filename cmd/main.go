package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/api/routes"
	"github.com/custody-service/custody_service/internal/domain/entities"
	"github.com/custody-service/custody_service/internal/domain/services/chain"
	"github.com/custody-service/custody_service/internal/domain/services/depositscan"
	"github.com/custody-service/custody_service/internal/domain/services/otc"
	"github.com/custody-service/custody_service/internal/domain/services/rate"
	"github.com/custody-service/custody_service/internal/domain/services/sweep"
	"github.com/custody-service/custody_service/internal/domain/services/transaction"
	"github.com/custody-service/custody_service/internal/domain/services/twofa"
	"github.com/custody-service/custody_service/internal/infrastructure/cache"
	"github.com/custody-service/custody_service/internal/infrastructure/config"
	"github.com/custody-service/custody_service/internal/infrastructure/database"
	"github.com/custody-service/custody_service/internal/infrastructure/repositories"
	"github.com/custody-service/custody_service/internal/workers/deposit_scanner"
	"github.com/custody-service/custody_service/internal/workers/order_scheduler"
	"github.com/custody-service/custody_service/internal/workers/sweep_collector"
	"github.com/custody-service/custody_service/pkg/graceful"
	"github.com/custody-service/custody_service/pkg/logger"
	"github.com/custody-service/custody_service/pkg/metrics"
	"github.com/custody-service/custody_service/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}
	log.Info("database migrations applied")

	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("failed to connect to redis", "error", err)
	}

	// Repositories
	txManager := repositories.NewTxManager(db, log.Zap())
	accountRepo := repositories.NewAccountRepository(db, log.Zap())
	transactionRepo := repositories.NewTransactionRepository(db, log.Zap())
	masterWalletRepo := repositories.NewMasterWalletRepository(db, log.Zap())
	cursorRepo := repositories.NewScanCursorRepository(db, log.Zap())
	orderRepo := repositories.NewOtcOrderRepository(db, log.Zap())
	rateRepo := repositories.NewRateRepository(db, log.Zap())

	// Chain clients, one per configured network
	clients, tokenContracts, networks := buildChainClients(cfg, log)
	if len(clients) == 0 {
		log.Fatal("no blockchain networks configured with an rpc endpoint")
	}
	registry := chain.NewRegistry(clients...)

	// Services
	twoFAService := twofa.NewService(db, log.Zap(), cfg.Security.TOTPIssuer, cfg.Security.EncryptionKey)
	rateService := rate.NewService(rateRepo, redisClient, log)

	addressCache := depositscan.NewAddressCache(accountRepo, masterWalletRepo,
		time.Duration(cfg.Scan.AddressCacheTTLs)*time.Second)
	scanService := depositscan.NewService(
		registry, addressCache, transactionRepo, accountRepo, masterWalletRepo,
		cursorRepo, txManager, tokenContracts, log,
	)

	sweepService := sweep.NewService(registry, accountRepo, masterWalletRepo, transactionRepo, txManager, sweep.Config{
		MinCollect:   decimal.NewFromFloat(cfg.Sweep.MinCollect),
		MaxFeeNative: feeCaps(cfg),
	}, cfg.Security.EncryptionKey, log)

	transactionService := transaction.NewService(
		accountRepo, masterWalletRepo, transactionRepo, registry, twoFAService, txManager,
		transaction.Config{FeePercent: decimal.NewFromFloat(cfg.Withdraw.FeePercent)},
		cfg.Security.EncryptionKey, log,
	)

	pricer := otc.NewPricer(
		rateService,
		cfg.Otc.Asset,
		decimal.NewFromFloat(cfg.Otc.SpreadPercent),
		time.Duration(cfg.Otc.QuoteValidityMinutes)*time.Minute,
		decimal.NewFromFloat(cfg.Otc.MinOrderAmount),
		decimal.NewFromFloat(cfg.Otc.MaxOrderAmount),
	)
	gate := otc.NewGate(accountRepo, orderRepo, otc.GateConfig{
		MaxSingleOrderFiat: decimal.NewFromFloat(cfg.Otc.MaxSingleOrderFiat),
		MaxDailyVolumeFiat: decimal.NewFromFloat(cfg.Otc.MaxDailyVolumeFiat),
		MaxFailedPerHour:   cfg.Otc.MaxFailedPerHour,
	})
	otcService := otc.NewService(orderRepo, accountRepo, masterWalletRepo, pricer, gate, txManager, otc.Config{
		MinOrderAmount:    decimal.NewFromFloat(cfg.Otc.MinOrderAmount),
		MaxOrderAmount:    decimal.NewFromFloat(cfg.Otc.MaxOrderAmount),
		SlippageTolerance: decimal.NewFromFloat(cfg.Otc.SlippageTolerance),
		MatchTolerance:    decimal.NewFromFloat(cfg.Otc.MatchTolerance),
		PreOrderExpiry:    time.Duration(cfg.Otc.PreOrderExpiryHours) * time.Hour,
		FiatCurrency:      cfg.Otc.FiatCurrency,
	}, log)

	// Workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanWorker := deposit_scanner.NewWorker(scanService, networks,
		time.Duration(cfg.Scan.IntervalSeconds)*time.Second, log)
	scanWorker.Start(ctx)

	sweepWorker := sweep_collector.NewWorker(sweepService, networks,
		time.Duration(cfg.Sweep.IntervalSeconds)*time.Second, log)
	sweepWorker.Start(ctx)

	orderScheduler := order_scheduler.NewScheduler(otcService, log)
	if err := orderScheduler.Start(ctx); err != nil {
		log.Fatal("failed to start order scheduler", "error", err)
	}

	go reportDBStats(ctx, db)

	// HTTP server
	limiter := ratelimit.NewLimiter(redisClient.Client(), ratelimit.Config{
		Limit:  120,
		Window: time.Minute,
	}, log.Zap())

	router := routes.Setup(routes.Services{
		DB:           db,
		Transactions: transactionService,
		Otc:          otcService,
		TwoFA:        twoFAService,
		Limiter:      limiter,
		Logger:       log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err)
		}
	}()

	sm := graceful.NewShutdownManager(server, db, log)
	sm.Register(scanWorker)
	sm.Register(sweepWorker)
	sm.Register(orderScheduler)
	sm.WaitForShutdown()
	redisClient.Close()
}

// buildChainClients creates a client for every network with an rpc
// endpoint configured. Networks without one are skipped with a warning so
// a partial deployment still runs.
func buildChainClients(cfg *config.Config, log *logger.Logger) ([]chain.Client, map[entities.Network]string, []entities.Network) {
	var clients []chain.Client
	tokenContracts := make(map[entities.Network]string)
	var networks []entities.Network

	for tag, nc := range cfg.Blockchain.Networks {
		network := entities.Network(tag)
		if err := network.Validate(); err != nil {
			log.Warn("skipping unknown network in config", "network", tag)
			continue
		}
		if nc.RPC == "" {
			log.Warn("skipping network without rpc endpoint", "network", tag)
			continue
		}

		var (
			client chain.Client
			err    error
		)
		if network.IsEVM() {
			client, err = chain.NewEVMClient(network, nc, cfg.Scan, log.Zap())
		} else {
			client, err = chain.NewTronClient(nc, cfg.Scan, log.Zap())
		}
		if err != nil {
			log.Fatal("failed to build chain client", "network", tag, "error", err)
		}

		clients = append(clients, client)
		tokenContracts[network] = nc.TokenContract
		networks = append(networks, network)
	}

	return clients, tokenContracts, networks
}

func feeCaps(cfg *config.Config) map[entities.Network]decimal.Decimal {
	caps := make(map[entities.Network]decimal.Decimal)
	for tag, nc := range cfg.Blockchain.Networks {
		if nc.MaxFeeNative == "" {
			continue
		}
		if cap, err := decimal.NewFromString(nc.MaxFeeNative); err == nil {
			caps[entities.Network(tag)] = cap
		}
	}
	return caps
}

// reportDBStats mirrors the connection pool size into the metrics gauge.
func reportDBStats(ctx context.Context, db *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
			metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
			metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		}
	}
}
