package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"carbontwin/ledger-backend/internal/auth"
	"carbontwin/ledger-backend/internal/config"
	"carbontwin/ledger-backend/internal/credits"
	"carbontwin/ledger-backend/internal/events"
	"carbontwin/ledger-backend/internal/ledger"
	"carbontwin/ledger-backend/internal/metrics"
	"carbontwin/ledger-backend/internal/payments"
	"carbontwin/ledger-backend/internal/platform"
	"carbontwin/ledger-backend/internal/twins"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}
	if cfg.Registry.AdminAddress == "" {
		logger.Fatal("REGISTRY_ADMIN_ADDRESS must be set")
	}

	// Connect to database
	dbURL := cfg.Database.GetDatabaseURL()
	logger.Info("Connecting to database", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if cfg.Database.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	gormDB, err := gorm.Open(gormpostgres.Open(dbURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to open gorm connection", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(&twins.DigitalTwin{}); err != nil {
		logger.Fatal("Failed to migrate twin schema", zap.Error(err))
	}

	// Events: websocket hub + journal
	hub := events.NewHub(logger)
	defer hub.Close()
	eventsRepo := events.NewPostgresRepository(db)
	eventsService := events.NewService(eventsRepo, hub, logger)
	eventsHandler := events.NewHandler(eventsService, hub)

	// Escrow
	escrow := payments.NewEscrow()
	paymentsHandler := payments.NewHandler(escrow)

	// Emission ledger
	ledgerRepo := ledger.NewPostgresRepository(db)
	ledgerService := ledger.NewService(ledgerRepo, eventsService, logger, cfg.Registry.AdminAddress)
	restoreLedger(logger, ledgerRepo, ledgerService)
	ledgerHandler := ledger.NewHandler(ledgerService)

	// Credit registry
	creditsRepo := credits.NewPostgresRepository(db)
	creditsService := credits.NewService(creditsRepo, escrow, eventsService, logger, credits.Config{
		RetireWhenEmpty: cfg.Registry.RetireWhenEmpty,
	})
	restoreCredits(logger, creditsRepo, creditsService)
	creditsHandler := credits.NewHandler(creditsService)

	// Twin registry
	twinsRepo := twins.NewGormRepository(gormDB)
	twinsService := twins.NewService(twinsRepo, eventsService, logger)
	restoreTwins(logger, twinsRepo, twinsService)
	twinsHandler := twins.NewHandler(twinsService)

	// Auth
	authRepo := auth.NewPostgresRepository(db)
	authService := auth.NewService(authRepo, logger, cfg.Security.JWTSecret, cfg.Security.TokenExpiry, cfg.Security.BcryptCost)
	authHandler := auth.NewHandler(authService)

	// Platform summary
	platformService := platform.NewService(ledgerService, creditsService, twinsService,
		platform.NewPostgresSnapshotRepository(db), logger)
	platformHandler := platform.NewHandler(platformService)

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinMiddleware())

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	{
		authHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)
		platformHandler.RegisterRoutes(api)

		protected := api.Group("")
		protected.Use(authService.RequireAuth())
		{
			authHandler.RegisterProtectedRoutes(protected)
			ledgerHandler.RegisterRoutes(protected)
			creditsHandler.RegisterRoutes(protected)
			twinsHandler.RegisterRoutes(protected)
			paymentsHandler.RegisterRoutes(protected)
		}
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if err := db.PingContext(c.Request.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now(),
		})
	})

	// Prometheus
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Start Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func restoreLedger(logger *zap.Logger, repo ledger.Repository, svc *ledger.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reports, err := repo.LoadReports(ctx)
	if err != nil {
		logger.Fatal("Failed to load emission reports", zap.Error(err))
	}
	verifiers, err := repo.LoadVerifiers(ctx)
	if err != nil {
		logger.Fatal("Failed to load verifiers", zap.Error(err))
	}
	scores, err := repo.LoadScores(ctx)
	if err != nil {
		logger.Fatal("Failed to load sustainability scores", zap.Error(err))
	}
	svc.Restore(reports, verifiers, scores)
	logger.Info("Emission ledger restored", zap.Int("reports", len(reports)), zap.Int("verifiers", len(verifiers)))
}

func restoreCredits(logger *zap.Logger, repo credits.Repository, svc *credits.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lots, err := repo.LoadCredits(ctx)
	if err != nil {
		logger.Fatal("Failed to load carbon credits", zap.Error(err))
	}
	svc.Restore(lots)
	logger.Info("Credit registry restored", zap.Int("credits", len(lots)))
}

func restoreTwins(logger *zap.Logger, repo twins.Repository, svc *twins.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	list, err := repo.LoadTwins(ctx)
	if err != nil {
		logger.Fatal("Failed to load digital twins", zap.Error(err))
	}
	svc.Restore(list)
	logger.Info("Twin registry restored", zap.Int("twins", len(list)))
}
