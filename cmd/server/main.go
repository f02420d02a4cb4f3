package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/klear-commissions/internal/auth"
	"github.com/ksred/klear-commissions/internal/broker"
	"github.com/ksred/klear-commissions/internal/commission"
	"github.com/ksred/klear-commissions/internal/config"
	"github.com/ksred/klear-commissions/internal/database"
	"github.com/ksred/klear-commissions/internal/deal"
	"github.com/ksred/klear-commissions/internal/payment"
	"github.com/ksred/klear-commissions/internal/split"
	"github.com/ksred/klear-commissions/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// configureLogging sets up zerolog. Outside production it pretty prints with
// timestamps, and Debug lowers the global level.
func configureLogging(cfg *config.Config) {
	if !cfg.IsProduction() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main runs the commissions API server with graceful shutdown support
func main() {
	cfg := config.Load()
	configureLogging(cfg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		zlog.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to initialize database")
	}

	app := newApp(cfg, db)

	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()
	go app.processor.Start(processorCtx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: app.router,
	}

	go func() {
		zlog.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Starting commissions API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")
	processorCancel()

	// Give in-flight split edits 5 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

type app struct {
	router    *gin.Engine
	processor *payment.Processor
}

// newApp wires services, handlers and routes on top of an open database
func newApp(cfg *config.Config, db *gorm.DB) *app {
	authService := auth.NewService(cfg.Auth.JWTSecret)
	authService.RegisterAPICredentials(cfg.Auth.APIKey, cfg.Auth.APISecret)
	if cfg.Auth.InternalAPIKey != "" {
		authService.RegisterAPICredentials(cfg.Auth.InternalAPIKey, cfg.Auth.InternalAPISecret,
			auth.PermissionSplits, auth.PermissionInternal)
	}

	// Shared so the auditor and the editor reuse each other's calculations
	cache := split.NewCache(cfg.SplitCacheSize)

	brokerService := broker.NewService(db)
	commissionService := commission.NewService(db, brokerService, cache)
	dealService := deal.NewService(db, commissionService)
	paymentService := payment.NewService(db, brokerService, cache)
	processor := payment.NewProcessor(paymentService, cfg.AuditInterval)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg.Auth.JWTSecret,
		auth.NewGinHandlers(authService),
		broker.NewGinHandlers(brokerService),
		deal.NewGinHandlers(dealService),
		payment.NewGinHandlers(paymentService, processor),
		commission.NewGinHandlers(commissionService),
	)

	return &app{router: router, processor: processor}
}

// setupRoutes configures all API endpoints and their handlers
// Auth routes are public, everything else needs a JWT, and the internal
// group additionally needs the internal permission
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	brokerHandlers *broker.GinHandlers,
	dealHandlers *deal.GinHandlers,
	paymentHandlers *payment.GinHandlers,
	commissionHandlers *commission.GinHandlers,
) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		api := v1.Group("")
		api.Use(middleware.JWTAuth(jwtSecret))
		{
			api.POST("/brokers", brokerHandlers.CreateBrokerHandler())
			api.GET("/brokers", brokerHandlers.ListBrokersHandler())

			api.POST("/deals", dealHandlers.CreateDealHandler())
			api.GET("/deals", dealHandlers.GetClientDealsHandler())
			api.GET("/deals/:deal_id", dealHandlers.GetDealHandler())
			api.PUT("/deals/:deal_id/pools", dealHandlers.UpdateDealPoolsHandler())

			api.POST("/deals/:deal_id/payments", paymentHandlers.GeneratePaymentsHandler())
			api.GET("/deals/:deal_id/payments", paymentHandlers.ListDealPaymentsHandler())
			api.PUT("/payments/:payment_id/status", paymentHandlers.UpdatePaymentStatusHandler())
			api.DELETE("/payments/:payment_id", paymentHandlers.DeletePaymentHandler())

			api.GET("/payments/:payment_id/splits", commissionHandlers.GetPaymentSplitsHandler())
			api.POST("/payments/:payment_id/splits", commissionHandlers.AddBrokerHandler())
			api.POST("/payments/:payment_id/splits/preview", commissionHandlers.PreviewSplitsHandler())
			api.PUT("/splits/:split_id", commissionHandlers.UpdateSplitHandler())
			api.DELETE("/splits/:split_id", commissionHandlers.RemoveSplitHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/audit", paymentHandlers.RunAuditHandler())
		}
	}
}
