package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"booking-saga/internal/api"
	"booking-saga/internal/audit"
	brokeramqp "booking-saga/internal/broker/amqp"
	"booking-saga/internal/config"
	pglog "booking-saga/internal/eventlog/postgres"
	"booking-saga/internal/orchestrator"
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
	if err := cfg.ValidateForOrchestrator(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	if err := pglog.CheckConnectivity(ctx, cfg.Postgres.DSN); err != nil {
		logger.Warn("postgres connectivity check failed", zap.Error(err))
	}
	cancel()

	if cfg.Audit.Enabled {
		ctx, cancel = context.WithTimeout(context.Background(), connectTimeout)
		if err := audit.CheckConnectivity(ctx, cfg.Audit.Brokers); err != nil {
			logger.Warn("kafka connectivity check failed", zap.Error(err))
		}
		cancel()
	}

	ctx, cancel = context.WithTimeout(context.Background(), connectTimeout)
	eventLog, err := pglog.New(ctx, cfg.Postgres)
	cancel()
	if err != nil {
		logger.Fatal("event log init failed", zap.Error(err))
	}
	defer eventLog.Close()

	transport, err := brokeramqp.Dial(cfg.Broker, logger)
	if err != nil {
		logger.Fatal("broker dial failed", zap.Error(err))
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warn("broker close error", zap.Error(err))
		}
	}()

	var auditor orchestrator.Auditor
	if cfg.Audit.Enabled {
		producer, err := audit.NewKafkaGoProducer(cfg.Audit)
		if err != nil {
			logger.Warn("audit producer init failed, audit disabled", zap.Error(err))
		} else {
			defer func() {
				if err := producer.Close(); err != nil {
					logger.Warn("audit producer close error", zap.Error(err))
				}
			}()
			stream, err := audit.NewStream(cfg.Audit, producer)
			if err != nil {
				logger.Warn("audit stream init failed, audit disabled", zap.Error(err))
			} else {
				auditor = stream
			}
		}
	}

	orch, err := orchestrator.New(eventLog, transport, auditor, logger)
	if err != nil {
		logger.Fatal("orchestrator init failed", zap.Error(err))
	}
	if err := orch.BindChannels(transport); err != nil {
		logger.Fatal("channel subscriptions failed", zap.Error(err))
	}

	server := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: api.NewRouter(orch),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("orchestrator listening",
		zap.String("addr", cfg.API.Addr), zap.String("exchange", cfg.Broker.Exchange))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	logger.Info("orchestrator shutting down")
}
