package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"commune-portal/admin-portal-backend/internal/approvals"
	"commune-portal/admin-portal-backend/internal/catalog"
	"commune-portal/admin-portal-backend/internal/config"
	"commune-portal/admin-portal-backend/internal/documents"
	"commune-portal/admin-portal-backend/internal/identity"
	"commune-portal/admin-portal-backend/internal/ledger"
	"commune-portal/admin-portal-backend/internal/notifications"
	"commune-portal/admin-portal-backend/internal/requests"
	"commune-portal/admin-portal-backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Logging.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	// The attestation ledger is optional; without a configured endpoint the
	// in-memory client keeps workflows fully functional.
	var ledgerClient ledger.Client
	if cfg.Ledger.BaseURL != "" {
		ledgerClient = ledger.NewHTTPClient(cfg.Ledger.BaseURL, cfg.Ledger.Timeout)
		log.Info("Using ledger service", zap.String("base_url", cfg.Ledger.BaseURL))
	} else {
		ledgerClient = ledger.NewMemoryClient()
		log.Warn("No ledger endpoint configured, attestations are in-memory only")
	}

	// Identity
	identityService := identity.NewService(identity.NewRepository(db), cfg.Security.JWTSecret, cfg.Security.TokenTTL, log)
	identityHandler := identity.NewHandler(identityService)

	// Catalog
	catalogService := catalog.NewService(catalog.NewRepository(db))
	catalogHandler := catalog.NewHandler(catalogService)

	// Notifications
	hub := notifications.NewHub(log)
	defer hub.Close()
	notificationService := notifications.NewService(notifications.NewRepository(db), hub, log)
	notificationHandler := notifications.NewHandler(notificationService, hub)

	// Approvals, documents and requests reference each other through small
	// interfaces; the chairman gates are wired once all three exist.
	approvalService := approvals.NewService(approvals.NewRepository(db), ledgerClient, cfg.Ledger.Timeout, log)
	documentService := documents.NewService(documents.NewRepository(db), catalogService, ledgerClient, approvalService, cfg.Ledger.Timeout, log)
	requestService := requests.NewService(requests.NewRepository(db), catalogService, ledgerClient, documentService, notificationService, cfg.Ledger.Timeout, log)
	approvalService.SetGates(requestService, documentService)

	approvalHandler := approvals.NewHandler(approvalService)
	documentHandler := documents.NewHandler(documentService)
	requestHandler := requests.NewHandler(requestService)

	if cfg.Logging.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

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

	api := router.Group("/api/v1")
	identityHandler.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(identity.AuthMiddleware(identityService))
	{
		identityHandler.RegisterProtectedRoutes(protected)
		catalogHandler.RegisterRoutes(protected)
		requestHandler.RegisterRoutes(protected)
		documentHandler.RegisterRoutes(protected)
		notificationHandler.RegisterRoutes(protected)
		approvalHandler.RegisterRoutes(protected)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"connections": hub.ConnectionCount(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("addr", cfg.Server.GetServerAddr()))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exiting")
}
