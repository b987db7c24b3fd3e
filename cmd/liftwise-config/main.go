package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"liftwise-config/internal/config"
	"liftwise-config/internal/database"
	httpapi "liftwise-config/internal/http"
	"liftwise-config/internal/logger"
	"liftwise-config/internal/repository"
	"liftwise-config/internal/service"
	"liftwise-config/internal/store"
	"liftwise-config/internal/validation"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "liftwise-config")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close(db)

	// Redis 可选：只承载解析结果缓存，缺席时解析直接走库
	var kv store.KV
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis unavailable, resolve cache disabled", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			kv = store.NewRedisKV(redisClient)
		}
	}

	configsRepo := repository.NewPostgresConfigsRepository(db)
	movementsRepo := repository.NewPostgresMovementsRepository(db)
	modifiersRepo := repository.NewPostgresModifiersRepository(db)

	validator := validation.NewValidator(log)
	configService := service.NewConfigService(configsRepo, movementsRepo, modifiersRepo, validator, kv, log)
	resolverService := service.NewResolverService(configsRepo, movementsRepo, kv, log)

	handler := httpapi.NewConfigHandler(configService, resolverService, log)
	router := httpapi.NewRouter(log)
	router.RegisterConfigRoutes(handler)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server stopped", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
