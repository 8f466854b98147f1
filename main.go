// Package main provides the main entry point for the HP tourism payment service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/handlers"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/middleware"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/router"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/scheduler"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/app/services"
	businessflow "github.com/microaistudio/hptourism-stg-rc3-sub004/business_flow"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/config"
	"github.com/microaistudio/hptourism-stg-rc3-sub004/repository"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting HP tourism payment service...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging routes the standard logger through a rotating file, optionally
// mirrored to stdout
func setupLogging(cfg config.LoggingConfig) {
	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	var out io.Writer = rotator
	if cfg.ToStdout {
		out = io.MultiWriter(os.Stdout, rotator)
	}
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.LUTC)
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.RedisURL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rc := redis.NewClient(opt)
	if err := rc.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Redis connection established")
	return rc, nil
}

func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Repositories
	transactionRepo := repository.NewPaymentTransactionRepository(db)
	settingRepo := repository.NewGatewaySettingRepository(db)
	callbackRepo := repository.NewCallbackLogRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	txRunner := repository.NewGormTxRunner(db)

	// Services
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	keys := services.NewFileKeyProvider(cfg.Treasury.KeyPath)
	codec := services.NewTreasuryCodec(keys)
	protocol := services.NewTreasuryProtocol(codec, cfg.Treasury.Endpoint)
	issuer := services.NewWorkflowClient(cfg.Workflow.BaseURL, cfg.Workflow.APIKey, cfg.Workflow.Timeout)

	var resultCache services.SettlementResultCache = services.NoopResultCache{}
	if rc != nil {
		resultCache = services.NewRedisResultCache(rc, cfg.Cache.ResultTTL)
	}

	// Flows
	paymentFlow := businessflow.NewPaymentFlow(
		transactionRepo,
		settingRepo,
		callbackRepo,
		auditRepo,
		txRunner,
		codec,
		protocol,
		issuer,
		resultCache,
		businessflow.FlowSettings{
			Defaults:   gatewayDefaultsFrom(cfg.Treasury),
			PayerID:    cfg.Treasury.PayerID,
			Production: cfg.Deployment.IsProduction(),
		},
	)

	reconciliationFlow := businessflow.NewReconciliationFlow(callbackRepo, auditRepo)

	authFlow := businessflow.NewAuthFlow(operatorsFrom(cfg.Operators), tokenService, auditRepo)

	// Background workers
	sweeper := scheduler.NewStalePaymentSweeper(transactionRepo, cfg.Server.SweepInterval, log.Default())
	stopFuncs = append(stopFuncs, sweeper.Start(context.Background()))

	// HTTP layer
	paymentHandler := handlers.NewPaymentHandler(paymentFlow)
	authHandler := handlers.NewAuthHandler(authFlow)
	reconciliationHandler := handlers.NewReconciliationHandler(reconciliationFlow)

	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(cfg.Server.APIKey)

	r := router.NewFiberRouter(
		paymentHandler,
		authHandler,
		reconciliationHandler,
		authMiddleware,
		apiKeyMiddleware,
		cfg.Server.AllowedOrigins,
	)

	return &Application{
		router:    r,
		config:    cfg,
		server:    r.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}

// gatewayDefaultsFrom maps the deployment treasury settings onto the
// lowest-precedence configuration layer
func gatewayDefaultsFrom(cfg config.TreasuryConfig) businessflow.GatewayDefaults {
	return businessflow.GatewayDefaults{
		MerchantCode:  cfg.MerchantCode,
		DeptID:        cfg.DeptID,
		ServiceCode:   cfg.ServiceCode,
		DdoCode:       cfg.DdoCode,
		Head1:         cfg.Head1Code,
		Head1Percent:  cfg.Head1Percent,
		Head2:         cfg.Head2Code,
		Head2Percent:  cfg.Head2Percent,
		Head3:         cfg.Head3Code,
		Head3Percent:  cfg.Head3Percent,
		Head4:         cfg.Head4Code,
		Head4Percent:  cfg.Head4Percent,
		Head10:        cfg.Head10Code,
		Head10Percent: cfg.Head10Percent,
		ReturnURL:     cfg.ReturnURL,
		KeyPath:       cfg.KeyPath,
		DdoByDistrict: cfg.DdoByDistrict,
	}
}

func operatorsFrom(cfg config.OperatorsConfig) []businessflow.OperatorCredential {
	operators := make([]businessflow.OperatorCredential, 0, len(cfg.Credentials))
	for username, hash := range cfg.Credentials {
		operators = append(operators, businessflow.OperatorCredential{
			Username:     username,
			PasswordHash: hash,
		})
	}
	return operators
}
