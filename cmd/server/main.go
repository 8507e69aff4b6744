package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Sube3494/shortlinks/config"
	"github.com/Sube3494/shortlinks/internal/database"
	"github.com/Sube3494/shortlinks/internal/handler"
	"github.com/Sube3494/shortlinks/internal/logger"
	"github.com/Sube3494/shortlinks/internal/middleware"
	"github.com/Sube3494/shortlinks/internal/observability"
	"github.com/Sube3494/shortlinks/internal/repository"
	route "github.com/Sube3494/shortlinks/internal/routes"
	"github.com/Sube3494/shortlinks/internal/service"
)

func main() {
	log := logger.Init("shortlinks", "production")
	defer log.Sync()

	zap.ReplaceGlobals(log)

	secrets, err := config.LoadConfig()
	if err != nil {
		log.Fatal("error loading configuration", zap.Error(err))
	}

	ctx := context.Background()
	obs, err := observability.Setup(ctx, "shortlinks")
	if err != nil {
		log.Fatal("observability failed to initialize", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Warn("observability shutdown", zap.Error(err))
		}
	}()

	pgClient, err := database.NewPostgresClient(secrets)
	if err != nil {
		log.Fatal("postgres failed to initialize", zap.Error(err))
	}
	defer pgClient.Close()
	log.Info("postgres connection established")

	if err := database.InitSchema(ctx, pgClient); err != nil {
		log.Fatal("schema initialization failed", zap.Error(err))
	}

	linkRepo := repository.NewPostgresLinkRepository(pgClient, nil)
	if secrets.RedisAddr != "" {
		redisClient, err := database.NewRedisClient(secrets)
		if err != nil {
			log.Fatal("redis failed to initialize", zap.Error(err))
		}
		log.Info("redis connection established")
		linkRepo = repository.NewPostgresLinkRepository(pgClient, redisClient)
	} else {
		log.Info("REDIS_ADDR not set, running without redirect cache")
	}

	keyRepo := repository.NewPostgresKeyRepository(pgClient)

	linkService := service.NewLinkService(linkRepo)
	keyService := service.NewKeyService(keyRepo, linkRepo)

	guard := middleware.NewBruteforceGuard(
		middleware.DefaultMaxFailures,
		middleware.DefaultFailureWindow,
		middleware.DefaultBanDuration,
	)
	authMW := middleware.APIKeyAuth(keyService, secrets.StaticAPIKey, guard)

	linkHandler := handler.NewLinkHandler(linkService, secrets.BaseURL)
	keyHandler := handler.NewKeyHandler()

	r := route.SetupRouter(linkHandler, keyHandler, authMW, obs)
	log.Info("starting server", zap.String("port", secrets.ServerPort))
	if err := r.Run(":" + secrets.ServerPort); err != nil {
		log.Fatal("server failed to start", zap.Error(err))
	}
}
