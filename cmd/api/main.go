package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"products-stocks-telegram/internal/auth"
	"products-stocks-telegram/internal/cache"
	"products-stocks-telegram/internal/config"
	"products-stocks-telegram/internal/dispatch"
	"products-stocks-telegram/internal/events"
	"products-stocks-telegram/internal/fulfillment"
	"products-stocks-telegram/internal/handlers"
	"products-stocks-telegram/internal/repository"
	"products-stocks-telegram/internal/security"
	"products-stocks-telegram/internal/telegram"
	"products-stocks-telegram/internal/telemetry"
	"products-stocks-telegram/pkg/logger"
	"products-stocks-telegram/pkg/middleware"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "products-stocks-telegram/docs" // Import docs for Swagger
)

// @title           Products Stocks Telegram API
// @version         1.0
// @description     Telegram webhook and admin API for the warehouse stock request dispatcher

// @host      localhost:8080
// @BasePath  /

// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	appLogger := logger.New(cfg.Environment, cfg.ServiceName)
	defer appLogger.Sync()

	appLogger.Info("🚀 Starting Products Stocks Telegram",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.String("db_driver", cfg.DBDriver),
	)

	appLogger.Info("⚙️ Workflow policies",
		zap.Duration("claim_lease", cfg.ClaimLease),
		zap.Bool("release_on_completion_failure", cfg.ReleaseOnCompletionFailure),
		zap.Bool("delete_trailing_message", cfg.DeleteTrailingMessage),
		zap.String("move_completion_resource", cfg.MoveCompletionResource),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.UseTelemetry, cfg.ServiceName, cfg.OTLPEndpoint, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	// Initialize store
	appLogger.Info("🔧 Initializing store...")
	store, err := repository.Open(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer store.Close()
	appLogger.Info("✅ Store initialized successfully")

	// Authorization grants, reloaded on change
	appLogger.Info("🔧 Loading grants...", zap.String("path", cfg.GrantsFile))
	grants, err := security.LoadGrants(cfg.GrantsFile, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to load grants", zap.Error(err))
	}
	go func() {
		if err := grants.Watch(ctx, cfg.GrantsFile); err != nil {
			appLogger.Warn("Grants watcher stopped, changes need a restart", zap.Error(err))
		}
	}()
	appLogger.Info("✅ Grants loaded successfully")

	// Event publisher
	var publisher events.EventPublisher = events.NewInMemoryEventPublisher(appLogger)
	if cfg.UseKafka {
		appLogger.Info("📡 Kafka Configuration",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic_stock", cfg.KafkaTopicStock),
			zap.String("topic_fixed", cfg.KafkaTopicFixed),
			zap.String("client_id", cfg.KafkaClientID),
			zap.String("acks", cfg.KafkaAcks),
		)
		kafkaPublisher, err := events.NewKafkaEventPublisher(cfg, appLogger)
		if err != nil {
			appLogger.Warn("Kafka unavailable, events will only be logged", zap.Error(err))
		} else {
			defer kafkaPublisher.Close()
			publisher = kafkaPublisher
		}
	}

	// Telegram transport
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

	// Workflow
	appLogger.Info("🔧 Initializing dispatcher...")
	machine := fulfillment.NewStateMachine(
		store,
		grants,
		fulfillment.NewStoreCompleter(store),
		publisher,
		fulfillment.PolicyFromConfig(cfg),
		appLogger,
	)
	coordinator := dispatch.NewCoordinator(store, machine, grants, dispatch.Options{
		DeleteTrailingMessage: cfg.DeleteTrailingMessage,
	}, appLogger)
	appLogger.Info("✅ Dispatcher initialized successfully")

	janitor := fulfillment.NewJanitor(store, cfg.ClaimLease, cfg.LeaseSweepInterval, appLogger)
	go janitor.Run(ctx)

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryHandler(appLogger))
	router.Use(middleware.RequestIDMiddleware(appLogger))
	router.Use(logger.GinMiddleware(appLogger, "/health"))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.ErrorHandler(appLogger))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", healthCheck(cfg.ServiceName))

	// Processed webhook updates and admin write requests
	requestIDStore := middleware.NewInMemoryRequestIDStore()
	go requestIDStore.Run(ctx, time.Minute)

	telegramHandler := handlers.NewTelegramHandler(coordinator, bot, requestIDStore, appLogger)
	router.POST("/telegram/webhook",
		middleware.TelegramSecretMiddleware(cfg.TelegramWebhookSecret, appLogger),
		telegramHandler.Webhook,
	)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL, appLogger)
	authHandler := auth.NewAuthHandler(jwtManager, cfg.AdminCredentials(), appLogger)
	adminHandler := handlers.NewAdminHandler(store, machine, appLogger)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/login", authHandler.Login)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(jwtManager, appLogger))
		protected.Use(middleware.IdempotencyMiddleware(requestIDStore, appLogger, 5*time.Minute))
		{
			requests := protected.Group("/requests")
			{
				requests.GET("/:id/claimant", adminHandler.GetClaimant)
				requests.POST("/:id/release", adminHandler.ReleaseRequest)
			}
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("🌐 HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Shutting down server...", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		appLogger.Warn("Failed to flush telemetry", zap.Error(err))
	}

	appLogger.Info("Server exited")
}

// healthCheck godoc
// @Summary      Health check endpoint
// @Tags         health
// @Produce      json
// @Success      200  {object}  handlers.HealthResponse
// @Router       /health [get]
func healthCheck(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, handlers.HealthResponse{
			Status:  "healthy",
			Service: service,
		})
	}
}
