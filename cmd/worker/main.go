package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/app"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/config"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/messaging/kafka/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if !cfg.Kafka.OutboxEnabled {
		logger.Info("outbox relay disabled, exiting")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	writer := producer.NewWriter(cfg.Kafka.Brokers)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close kafka writer", "error", err)
		}
	}()

	logger.Info("outbox relay started", "brokers", cfg.Kafka.Brokers, "poll_interval", cfg.Kafka.PollInterval.String())
	producer.ProcessOutboxEvents(ctx, a.Outbox, writer, logger, cfg.Kafka.PollInterval, cfg.Kafka.OutboxBatchSize)
	logger.Info("outbox relay stopped")
}
