package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	brokeramqp "booking-saga/internal/broker/amqp"
	"booking-saga/internal/config"
	"booking-saga/internal/participants"
)

const connectTimeout = 2 * time.Second

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateForParticipants(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	transport, err := brokeramqp.Dial(cfg.Broker, logger)
	if err != nil {
		logger.Fatal("broker dial failed", zap.Error(err))
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warn("broker close error", zap.Error(err))
		}
	}()

	var counter participants.NotificationCounter
	if cfg.Redis.Addr != "" {
		redisCounter := participants.NewRedisCounter(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisCounter.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		if _, err := redisCounter.Increment(ctx, "startup-probe"); err != nil {
			logger.Warn("redis connectivity check failed", zap.Error(err))
		} else {
			_ = redisCounter.Reset(ctx, "startup-probe")
		}
		cancel()

		counter = redisCounter
		logger.Info("notification counter backed by redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		counter = participants.NewMemoryCounter()
		logger.Info("notification counter in memory")
	}

	svc := participants.New(transport, counter, logger)
	if err := svc.Bind(transport); err != nil {
		logger.Fatal("participant subscriptions failed", zap.Error(err))
	}
	logger.Info("participants listening", zap.String("exchange", cfg.Broker.Exchange))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("participants shutting down")
}
