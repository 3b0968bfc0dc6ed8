package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/cuongbtq/musicgen/internal/api/handler"
	"github.com/cuongbtq/musicgen/internal/api/router"
	"github.com/cuongbtq/musicgen/internal/api/service"
	"github.com/cuongbtq/musicgen/internal/api/storage"
	"github.com/cuongbtq/musicgen/internal/config"
	"github.com/cuongbtq/musicgen/internal/suno"
	"github.com/cuongbtq/musicgen/shared/logger"
	"github.com/cuongbtq/musicgen/shared/postgresql"
	"github.com/cuongbtq/musicgen/shared/rabbitmq"
	"github.com/cuongbtq/musicgen/shared/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	appLogger = appLogger.With(slog.String("service", cfg.App.Name))

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	if cfg.Suno.APIKey == "" {
		appLogger.Warn("SUNO_API_KEY is not set, only test requests will succeed")
	}

	ctx := context.Background()

	deps := &handler.Dependencies{
		Logger:             appLogger.Logger,
		CallbackRoutingKey: cfg.RabbitMQ.CallbackRoutingKey,
		HealthChecks:       map[string]handler.HealthCheck{},
		Debug: handler.DebugInfo{
			Service:         cfg.App.Name,
			Version:         cfg.App.Version,
			Environment:     cfg.App.Environment,
			SunoBaseURL:     cfg.Suno.BaseURL,
			APIKey:          cfg.Suno.APIKey,
			CallbackURL:     cfg.Suno.CallbackURL(),
			DatabaseEnabled: cfg.Database.Enabled,
			RabbitMQEnabled: cfg.RabbitMQ.Enabled,
			RedisEnabled:    cfg.Redis.Enabled,
		},
	}

	var callbacks *storage.CallbackCache
	if cfg.Redis.Enabled {
		redisClient, err := initRedis(ctx, &cfg.Redis, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()

		callbacks = storage.NewCallbackCache(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.CallbackTTL)
		deps.Callbacks = callbacks
		deps.HealthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
		appLogger.Info("Redis callback cache enabled")
	}

	if cfg.Database.Enabled {
		dbClient, err := initPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		if err := dbClient.Migrate(ctx, storage.Schema...); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		deps.Jobs = storage.NewStorage(dbClient.DB())
		deps.HealthChecks["database"] = dbClient.HealthCheck
		appLogger.Info("Database connection established")
	}

	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		deps.Queue = rabbitClient
		deps.HealthChecks["rabbitmq"] = func(context.Context) error {
			if !rabbitClient.IsConnected() {
				return rabbitmq.ErrNotConnected
			}
			return nil
		}
		appLogger.Info("RabbitMQ connection established")
	}

	provider := suno.NewClient(suno.Config{
		BaseURL:         cfg.Suno.BaseURL,
		APIKey:          cfg.Suno.APIKey,
		GenerateTimeout: cfg.Suno.GenerateTimeout,
		StatusTimeout:   cfg.Suno.StatusTimeout,
		MaxRetries:      cfg.Suno.MaxRetries,
		RetryBaseDelay:  cfg.Suno.RetryBaseDelay,
		Logger:          appLogger.Logger,
	})

	deps.Gateway = service.NewGateway(provider, cfg.Suno.CallbackURL(), appLogger.Logger)
	if callbacks != nil {
		deps.Normalizer = service.NewNormalizer(provider, callbacks, appLogger.Logger)
	} else {
		deps.Normalizer = service.NewNormalizer(provider, nil, appLogger.Logger)
	}

	r := initRouter(cfg, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		slog.String("callback_url", cfg.Suno.CallbackURL()),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed to start", slog.Any("error", err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initRedis connects the callback cache
func initRedis(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*goredis.Client, error) {
	return redis.NewClient(ctx, &redis.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps, router.Options{
		ServiceName:     cfg.App.Name,
		SubmitRateLimit: cfg.Server.SubmitRateLimit,
	})
}
