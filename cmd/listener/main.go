package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"products-stocks-telegram/internal/cache"
	"products-stocks-telegram/internal/config"
	"products-stocks-telegram/internal/dispatch"
	"products-stocks-telegram/internal/kafka"
	"products-stocks-telegram/internal/listener"
	"products-stocks-telegram/internal/repository"
	"products-stocks-telegram/internal/security"
	"products-stocks-telegram/internal/telegram"
	"products-stocks-telegram/internal/telemetry"
	"products-stocks-telegram/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	appLogger := logger.New(cfg.Environment, cfg.ServiceName+"-listener")
	defer appLogger.Sync()

	appLogger.Info("🚀 Starting Stock Request Listener",
		zap.String("environment", cfg.Environment),
		zap.String("db_driver", cfg.DBDriver),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("kafka_group_id", cfg.KafkaGroupID),
	)

	appLogger.Info("📡 Kafka Configuration",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic_stock", cfg.KafkaTopicStock),
		zap.String("group_id", cfg.KafkaGroupID),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.UseTelemetry, cfg.ServiceName+"-listener", cfg.OTLPEndpoint, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	appLogger.Info("🔧 Initializing store...")
	store, err := repository.Open(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer store.Close()
	appLogger.Info("✅ Store initialized successfully")

	grants, err := security.LoadGrants(cfg.GrantsFile, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to load grants", zap.Error(err))
	}
	go func() {
		if err := grants.Watch(ctx, cfg.GrantsFile); err != nil {
			appLogger.Warn("Grants watcher stopped, changes need a restart", zap.Error(err))
		}
	}()

	// Announcements share the last-message cache with the webhook service
	lastMessages := cache.Cache(cache.NewInMemoryCache())
	if cfg.UseCache {
		lastMessages = cache.NewCache(ctx, cache.Options{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, appLogger)
	}
	bot := telegram.NewClient(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramTimeout, lastMessages, appLogger)

	appLogger.Info("🔧 Initializing event processor...")
	announcer := dispatch.NewAnnouncer(store, grants, bot, appLogger)
	processor := listener.NewEventProcessor(store, announcer, appLogger)
	appLogger.Info("✅ Event processor initialized successfully")

	appLogger.Info("🔧 Initializing Kafka consumer...")
	consumer, err := kafka.NewConsumer(cfg, processor, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()
	appLogger.Info("✅ Kafka consumer initialized successfully",
		zap.Strings("topics", []string{cfg.KafkaTopicStock}),
	)

	errChan := make(chan error, 1)
	go func() {
		appLogger.Info("📨 Starting Kafka consumer...")
		if err := consumer.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		appLogger.Error("Consumer error", zap.Error(err))
	case sig := <-quit:
		appLogger.Info("Shutting down listener", zap.String("signal", sig.String()))
	}
	cancel()

	appLogger.Info("Listener exited")
}
