package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"racing-gateway/internal/common/logging"
	"racing-gateway/internal/common/utils"
	"racing-gateway/internal/config"
	"racing-gateway/internal/handlers"
	"racing-gateway/internal/middleware"
	"racing-gateway/internal/profile"
	"racing-gateway/internal/redis"
	"racing-gateway/internal/resolver"
	"racing-gateway/internal/secrets"
	"racing-gateway/internal/server"
	"racing-gateway/internal/store"
	"racing-gateway/internal/token"
	"racing-gateway/internal/upstream"
)

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	redisDB, _ := strconv.Atoi(cfg.RedisDB)
	poolSize, _ := strconv.Atoi(cfg.RedisPoolSize)
	redisClient, err := redis.NewClient(&redis.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       redisDB,
		PoolSize: poolSize,
	})
	if err != nil {
		logger.Error("Failed to connect to Redis", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	credentialStore, err := secrets.NewAWSStore(context.Background(), secrets.AWSStoreConfig{
		SecretName:      cfg.SecretName,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize credential store", err)
		os.Exit(1)
	}

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries
	retry.InitialDelay = cfg.BaseBackoffDelay

	tokenManager, err := token.NewManager(&token.Config{
		TokenURL:             cfg.OAuthTokenURL,
		Scope:                cfg.OAuthScope,
		UserAgent:            cfg.UserAgent,
		AccessTokenLifetime:  cfg.AccessTokenLifetime,
		RefreshTokenLifetime: cfg.RefreshTokenLifetime,
		Retry:                &retry,
	}, credentialStore, store.NewRedisTokenStore(redisClient), logger)
	if err != nil {
		logger.Error("Failed to initialize token manager", err)
		os.Exit(1)
	}

	apiClient, err := upstream.NewClient(&upstream.Config{
		BaseURL:   cfg.APIBaseURL,
		UserAgent: cfg.UserAgent,
		Retry:     &retry,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize upstream client", err)
		os.Exit(1)
	}

	nameResolver, err := resolver.NewService(store.NewRedisIdentifierStore(redisClient), tokenManager, apiClient, logger)
	if err != nil {
		logger.Error("Failed to initialize resolver", err)
		os.Exit(1)
	}

	profileService, err := profile.NewService(&profile.Config{CacheTTL: cfg.ProfileCacheTTL},
		store.NewRedisProfileStore(redisClient), nameResolver, tokenManager, apiClient, logger)
	if err != nil {
		logger.Error("Failed to initialize profile service", err)
		os.Exit(1)
	}

	h := handlers.New(tokenManager, nameResolver, profileService, redisClient, logger)
	srv := server.New(middleware.LoggingMiddleware(h.Router()), cfg.Port)

	// Proactive refresh keeps the stored token warm so most requests take
	// the cached path.
	scheduler := cron.New()
	if cfg.RefreshSchedule != "" {
		_, err = scheduler.AddFunc(cfg.RefreshSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := tokenManager.EnsureToken(ctx); err != nil {
				logger.Warn("Proactive token refresh failed",
					logging.Field{Key: "error", Value: err.Error()},
				)
			}
		})
		if err != nil {
			logger.Error("Invalid refresh schedule", err,
				logging.Field{Key: "schedule", Value: cfg.RefreshSchedule},
			)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	errCh := srv.Start()
	logger.Info("Server started",
		logging.Field{Key: "port", Value: cfg.Port},
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error("Server failed", err)
		os.Exit(1)
	case sig := <-quit:
		logger.Info("Shutting down",
			logging.Field{Key: "signal", Value: sig.String()},
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
		os.Exit(1)
	}
	logger.Info("Server exited")
}
