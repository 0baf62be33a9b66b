package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MorphGate/morphgate/internal/config"
	"github.com/MorphGate/morphgate/internal/handler"
	"github.com/MorphGate/morphgate/internal/ledger"
	"github.com/MorphGate/morphgate/internal/manager"
	"github.com/MorphGate/morphgate/internal/market"
	"github.com/MorphGate/morphgate/internal/middleware"
	"github.com/MorphGate/morphgate/internal/model"
	"github.com/MorphGate/morphgate/internal/pkg/logger"
	"github.com/MorphGate/morphgate/internal/repository"
	"github.com/MorphGate/morphgate/internal/service"
	"github.com/MorphGate/morphgate/internal/signer"
)

func main() {
	// 0. Initialize Logger
	logger.Init("info")

	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Persistence
	// Redis (volume counters + idempotency)
	var redisClient *repository.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back", "error", err)
			redisClient = nil
		}
	}

	// Postgres (events, audit, volume fallback)
	var eventRepo service.EventRepo
	var auditRepo service.AuditRepo
	var pgVolume *repository.PostgresVolumeRepo
	var idempotencyStore middleware.IdempotencyStore
	var tenantRepo service.TenantRepoCRUD
	if cfg.Database.DSN != "" {
		sqlDB, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
			eventRepo = repository.NewPostgresEventRepo(sqlDB)
			auditRepo = repository.NewPostgresAuditRepo(sqlDB)
			pgVolume = repository.NewPostgresVolumeRepo(sqlDB)
			if redisClient == nil {
				idempotencyStore = repository.NewPostgresIdempotencyStore(sqlDB)
			}
		} else {
			logger.Error("⚠️ Failed to connect to DB, events and audit will be file-only", "error", err)
		}
		if gormDB, err := repository.NewGormDB(cfg); err == nil {
			if repo, err := repository.NewGormTenantRepo(gormDB); err == nil {
				tenantRepo = repo
			}
		}
	}

	// Efficiency volume store (Redis > Postgres > Memory)
	var volumeRepo service.VolumeRepo
	switch {
	case redisClient != nil:
		volumeRepo = repository.NewRedisVolumeRepo(redisClient)
	case pgVolume != nil:
		volumeRepo = pgVolume
	default:
		volumeRepo = service.NewVolumeStore()
	}

	if idempotencyStore == nil {
		if redisClient != nil {
			idempotencyStore = repository.NewRedisIdempotencyStore(redisClient,
				time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second)
		} else {
			idempotencyStore = middleware.NewInMemIdempotencyStore()
		}
	}

	// 3. Chain plumbing
	ethClient, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("Failed to dial chain RPC: %v", err)
	}
	txSigner, err := signer.NewSigner(cfg.Gateway.PrivateKey, cfg.Chain.ChainID)
	if err != nil {
		log.Fatalf("Failed to load gateway key: %v", err)
	}
	nonces := manager.NewNonceManager(ethClient)
	transactor := ledger.NewTransactor(ethClient, txSigner, nonces, cfg.Chain.WaitMined)

	ledgerAddr := common.HexToAddress(cfg.Chain.LedgerAddress)
	ledgerClient, err := ledger.NewClient(ledgerAddr, transactor)
	if err != nil {
		log.Fatalf("Failed to initialize ledger client: %v", err)
	}
	erc20, err := ledger.NewERC20Client(transactor)
	if err != nil {
		log.Fatalf("Failed to initialize token client: %v", err)
	}
	allowances := manager.NewAllowanceManager(erc20, txSigner.Address())

	// 4. Core services
	tenantManager := service.NewTenantManager(cfg, tenantRepo)
	tenantSvc := service.NewTenantService(tenantManager, tenantRepo)

	auditSvc, err := service.NewAuditService(cfg.Gateway.EventLogDir, auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}
	eventSvc, err := service.NewEventService(cfg.Gateway.EventLogDir, eventRepo)
	if err != nil {
		log.Fatalf("Failed to initialize event service: %v", err)
	}

	owner := common.HexToAddress(cfg.Gateway.Owner)
	if owner == (common.Address{}) {
		owner = txSigner.Address()
	}

	// Warm cache for the configured markets; MarketInfo serves from it
	// while entries are fresh.
	marketCache := market.NewCache(ledgerClient, time.Duration(cfg.Gateway.CacheRefreshSeconds)*time.Second)
	for _, mc := range cfg.Markets {
		params := model.MarketParams{
			LoanToken:       mc.LoanToken,
			CollateralToken: mc.CollateralToken,
			Oracle:          mc.Oracle,
			RateModel:       mc.RateModel,
			LLTV:            mc.LLTV,
		}
		if modelCfg, err := params.ToConfig(); err == nil {
			marketCache.Track(modelCfg)
		} else {
			logger.Warn("skipping invalid configured market", "error", err.Error())
		}
	}
	marketCache.Start()

	gatewaySvc := service.NewGatewayService(service.GatewayDeps{
		Ledger:     ledgerClient,
		Rates:      ledgerClient,
		Tokens:     erc20,
		Codes:      ledgerClient,
		Allowances: allowances,
		Efficiency: service.NewEfficiencyEngine(volumeRepo),
		Events:     eventSvc,
		Risk:       service.NewRiskEngine(),
		States:     marketCache,
		Custody:    txSigner.Address(),
		LedgerAddr: ledgerAddr,
		Owner:      owner,
	})

	// 5. Handlers
	marketHandler := handler.NewMarketHandler(gatewaySvc)
	adminHandler := handler.NewAdminHandler(gatewaySvc)
	eventsHandler := handler.NewEventsHandler(eventSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	tenantHandler := handler.NewTenantHandler(tenantSvc)

	// 6. Router
	r := gin.Default()

	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.AuditMiddleware(auditSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "morphgate"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg, tenantManager))
	v1.Use(middleware.RateLimitMiddleware(tenantManager))
	v1.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore))
	{
		v1.POST("/supply", marketHandler.Supply)
		v1.POST("/collateral", marketHandler.SupplyCollateral)
		v1.POST("/borrow", marketHandler.Borrow)
		v1.POST("/withdraw", marketHandler.Withdraw)
		v1.POST("/withdraw-collateral", marketHandler.WithdrawCollateral)
		v1.POST("/repay", marketHandler.Repay)
		v1.POST("/markets/info", marketHandler.Info)
		v1.GET("/markets/:id/efficiency", marketHandler.Efficiency)
		v1.GET("/executions", eventsHandler.List)
		v1.GET("/executions/stream", eventsHandler.Stream)
		v1.GET("/audit", auditHandler.List)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	admin.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))
	{
		admin.POST("/recover", adminHandler.Recover)
		admin.POST("/ownership", adminHandler.TransferOwnership)
		admin.GET("/owner", adminHandler.Owner)
		admin.GET("/tenants", tenantHandler.List)
		admin.GET("/tenants/:id", tenantHandler.Get)
		admin.POST("/tenants", tenantHandler.Create)
		admin.PUT("/tenants/:id", tenantHandler.Update)
		admin.DELETE("/tenants/:id", tenantHandler.Delete)
	}

	// 7. Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 MorphGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	marketCache.Stop()
	eventSvc.Close()
	auditSvc.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}
