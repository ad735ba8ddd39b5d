package producer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/messaging/kafka"
)

const defaultBatchSize = 50

func ProcessOutboxEvents(
	ctx context.Context,
	repo kafka.OutboxRepository,
	writer MessageWriter,
	logger *slog.Logger,
	pollInterval time.Duration,
	batchSize int,
) {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}

	log := logger.With("component", "kafka.producer.worker")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Info("outbox worker started", "poll_interval", pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Info("outbox worker stopped")
			return
		case <-ticker.C:
			if _, err := ProcessPendingEvents(ctx, repo, writer, log, batchSize); err != nil {
				log.Error("process outbox events failed", "error", err)
			}
		}
	}
}

// ProcessPendingEvents publishes up to limit pending events and returns how
// many were sent. A non-positive limit uses the default page size.
func ProcessPendingEvents(
	ctx context.Context,
	repo kafka.OutboxRepository,
	writer MessageWriter,
	logger *slog.Logger,
	limit int,
) (int, error) {
	if limit <= 0 {
		limit = defaultBatchSize
	}
	events, err := repo.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	logger.Info("processing pending outbox events", "count", len(events))

	sent := 0
	for _, event := range events {
		if err := publishEvent(ctx, writer, event); err != nil {
			logger.Error("publish outbox event failed",
				"outbox_id", event.ID,
				"event_type", event.EventType,
				"topic", event.Topic,
				"error", err,
			)
			if markErr := repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				logger.Error("mark outbox failed failed", "outbox_id", event.ID, "error", markErr)
			}
			continue
		}

		if err := repo.MarkSent(ctx, event.ID); err != nil {
			logger.Error("mark outbox sent failed",
				"outbox_id", event.ID,
				"error", err,
			)
			continue
		}
		sent++

		logger.Info("outbox event sent",
			"outbox_id", event.ID,
			"event_type", event.EventType,
			"topic", event.Topic,
		)
	}

	return sent, nil
}
