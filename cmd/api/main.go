package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "opsboard/api/swagger" // swagger docs
	"opsboard/internal/config"
	"opsboard/internal/database"
	"opsboard/internal/feed"
	"opsboard/internal/handler"
	"opsboard/internal/middleware"
	"opsboard/internal/notify"
	"opsboard/internal/policy"
	"opsboard/internal/repository"
	"opsboard/internal/service"
	"opsboard/internal/websocket"
	"opsboard/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Opsboard API
// @version         1.0
// @description     Ledger, wage settlement, expense vouchers and approval flags for field operations.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	zlog, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		log.Fatalf("Logger init failed: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("Database connection failed", zap.Error(err))
	}
	zlog.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(zlog)
	go wsHub.Run(ctx)

	// Events fan out through Redis when configured so every instance's hub sees them.
	var publisher feed.Publisher = wsHub
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			zlog.Fatal("Redis connection failed", zap.Error(err))
		}
		publisher = feed.NewRedisPublisher(rdb, cfg.Redis.Channel)

		relay := feed.NewRelay(rdb, cfg.Redis.Channel, wsHub, zlog)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("Feed relay stopped", zap.Error(err))
			}
		}()
		zlog.Info("Feed bridged through Redis", zap.String("channel", cfg.Redis.Channel))
	}

	deps := service.Deps{
		Policy: policy.Default(),
		Clock:  service.NewMonotonicClock(nil),
		Log:    zlog,
		Sink:   notify.Multi{notify.NewZapSink(zlog), notify.NewFeedSink(publisher)},
	}

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	userService := service.NewUserService(userRepo, cfg.Auth.Secret(), cfg.Auth.TokenTTL, deps.Clock)
	auditService := service.NewAuditService(auditRepo)
	ledgerService := service.NewLedgerService(
		repository.NewAccountRepository(db),
		repository.NewLedgerRepository(db),
		auditRepo, txManager, deps,
	)
	settlementService := service.NewSettlementService(repository.NewBatchRepository(db), auditRepo, ledgerService, txManager, deps)
	voucherService := service.NewVoucherService(repository.NewVoucherRepository(db), auditRepo, txManager, cfg.Voucher.ReversalWindow, deps)
	approvalSetService := service.NewApprovalSetService(repository.NewApprovalSetRepository(db), auditRepo, txManager, publisher, deps)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService, deps.Policy, cfg.Auth.TokenTTL)
	auditHandler := handler.NewAuditHandler(auditService, deps.Policy)
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	batchHandler := handler.NewBatchHandler(settlementService)
	voucherHandler := handler.NewVoucherHandler(voucherService)
	approvalSetHandler := handler.NewApprovalSetHandler(approvalSetService)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": wsHub.ClientCount()})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, cfg.Auth.Secret())
	})

	// API Routing
	userHandler.RegisterPublicRoutes(router.Group(""))

	api := router.Group("/api", middleware.Authenticate(cfg.Auth.Secret()))
	userHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)
	ledgerHandler.RegisterRoutes(api)
	batchHandler.RegisterRoutes(api)
	voucherHandler.RegisterRoutes(api)
	approvalSetHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		zlog.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Server shutdown failed", zap.Error(err))
	}
}
