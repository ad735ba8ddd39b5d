package postgresql

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/messaging/kafka"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
)

type outboxRepository struct {
	db *database.DB
}

// NewOutboxRepository stores outbox events next to the rows they describe.
// Create joins the transaction carried by ctx.
func NewOutboxRepository(db *database.DB) kafka.OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Create(ctx context.Context, event kafka.OutboxEvent) error {
	if err := kafka.ValidateOutboxEvent(event); err != nil {
		return err
	}

	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, event_type, topic, payload, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := q.Exec(ctx, query,
		event.ID, event.AggregateType, event.AggregateID,
		event.EventType, event.Topic, event.Payload, event.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]kafka.OutboxEvent, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT
			id::text, aggregate_type, aggregate_id, event_type, topic, payload,
			status, retry_count, COALESCE(next_retry_at, created_at), created_at
		FROM outbox_events
		WHERE status IN ($1, $2)
			AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := q.Query(ctx, query, kafka.OutboxStatusPending, kafka.OutboxStatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]kafka.OutboxEvent, 0, limit)
	for rows.Next() {
		var e kafka.OutboxEvent
		if err := rows.Scan(
			&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Topic, &e.Payload,
			&e.Status, &e.RetryCount, &e.NextRetryAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE outbox_events
		SET status = $2, processed_at = NOW(), error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := q.Exec(ctx, query, id, kafka.OutboxStatusSent); err != nil {
		return fmt.Errorf("failed to mark outbox event sent: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE outbox_events
		SET
			status = $2,
			retry_count = retry_count + 1,
			error_message = LEFT($3, 500),
			next_retry_at = NOW() + (LEAST(retry_count + 1, 10) * INTERVAL '15 seconds'),
			updated_at = NOW()
		WHERE id = $1
	`

	if _, err := q.Exec(ctx, query, id, kafka.OutboxStatusFailed, reason); err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	return nil
}
