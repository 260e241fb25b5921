package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wfsantos/agendabot/cmd/mainconfig"
	"github.com/wfsantos/agendabot/internal/api/router"
	"github.com/wfsantos/agendabot/internal/booking"
	appconfig "github.com/wfsantos/agendabot/internal/config"
	"github.com/wfsantos/agendabot/internal/conversation"
	"github.com/wfsantos/agendabot/internal/customers"
	"github.com/wfsantos/agendabot/internal/events"
	"github.com/wfsantos/agendabot/internal/gateway"
	"github.com/wfsantos/agendabot/internal/http/handlers"
	"github.com/wfsantos/agendabot/internal/notify"
	"github.com/wfsantos/agendabot/internal/observability/metrics"
	"github.com/wfsantos/agendabot/internal/tenancy"
	"github.com/wfsantos/agendabot/pkg/logging"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agendabot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	msgMetrics := metrics.NewMessagingMetrics(nil)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	convStore := conversation.NewStore(dynamoClient, cfg.ConversationsTable, logger)

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	processedStore := events.NewProcessedStore(redisClient)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	resolver := tenancy.NewResolver(pool)

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open sql connection", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()
	directory := customers.NewStore(sqlDB)

	gatewayClient, err := gateway.New(gateway.Config{
		BaseURL:     cfg.GatewayBaseURL,
		APIKey:      cfg.GatewayAPIKey,
		CountryCode: cfg.DefaultCountryCode,
		AttemptCap:  cfg.GatewayAttemptCap,
		Deadline:    cfg.GatewayDeadline,
		CallTimeout: cfg.GatewayCallTimeout,
		Logger:      logger,
		Metrics:     msgMetrics,
	})
	if err != nil {
		logger.Error("failed to configure gateway client", "error", err)
		os.Exit(1)
	}

	bookingClient, err := booking.NewClient(booking.Config{
		BaseURL: cfg.SchedulerBaseURL,
		APIKey:  cfg.SchedulerAPIKey,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to configure scheduling client", "error", err)
		os.Exit(1)
	}

	engine := conversation.NewEngine(conversation.EngineConfig{
		Store:        convStore,
		Catalog:      bookingClient,
		Availability: bookingClient,
		Booker:       bookingClient,
		Directory:    directory,
		Staleness:    cfg.ConversationStale,
		Logger:       logger,
		Metrics:      msgMetrics,
	})

	sesSender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
		FromEmail: cfg.SESFromEmail,
	}, logger)
	sendGridSender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	// Assign through the interface only when the concrete sender exists, so an
	// unconfigured sender stays a nil interface inside the service.
	var primaryEmail, fallbackEmail notify.EmailSender
	if sesSender != nil {
		primaryEmail = sesSender
	}
	if sendGridSender != nil {
		fallbackEmail = sendGridSender
	}
	notifier := notify.NewService(primaryEmail, fallbackEmail, logger)

	webhookHandler := handlers.NewGatewayWebhookHandler(handlers.GatewayWebhookConfig{
		Engine:        engine,
		Tenants:       resolver,
		Sender:        gatewayClient,
		Processed:     processedStore,
		Notifier:      notifier,
		WebhookSecret: cfg.GatewayWebhookSecret,
		Logger:        logger,
		Metrics:       msgMetrics,
	})

	r := router.New(&router.Config{
		Logger:             logger,
		GatewayWebhooks:    webhookHandler,
		Health:             handlers.NewHealthHandler(version),
		AdminConversations: handlers.NewAdminConversationHandler(convStore, logger),
		AdminGateway:       handlers.NewAdminGatewayHandler(gatewayClient, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
