package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promptaat/internal/config"
	"promptaat/internal/domain/services"
	"promptaat/internal/infrastructure/billing"
	"promptaat/internal/infrastructure/cache"
	"promptaat/internal/infrastructure/database"
	handlers "promptaat/internal/interfaces/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis only backs webhook dedup; the service stays up without it.
	var journal handlers.EventJournal
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, webhook dedup disabled", "error", err)
	} else {
		defer redisClient.Close()
		journal = redisClient
	}

	provider := billing.NewStripeClient(cfg.Billing.StripeSecret)

	subscriptionRepo := database.NewSubscriptionRepository(db.DB)
	userRepo := database.NewUserRepository(db.DB)

	resolver := services.NewUserResolver(provider, userRepo, logger)
	syncService := services.NewSyncService(subscriptionRepo, resolver, provider, logger)

	verifier := services.NewEventVerifier(cfg.Billing.StripeWebhookSecret)
	legacySecret := cfg.Billing.LegacyWebhookSecret
	if legacySecret == "" {
		legacySecret = cfg.Billing.StripeWebhookSecret
	}
	legacyVerifier := services.NewEventVerifier(legacySecret)

	webhookHandler := handlers.NewWebhookHandler(verifier, legacyVerifier, syncService, journal, logger)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	webhookHandler.Register(router)

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "billing-service"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("billing service listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("billing service stopped")
}
