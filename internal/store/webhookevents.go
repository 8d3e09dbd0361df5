package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const webhookEventColumns = `id, store_id, external_id, event_type, payload, signature,
	status, received_at, processed_at, error`

func scanWebhookEvent(row pgx.Row) (WebhookEvent, error) {
	var e WebhookEvent
	err := row.Scan(
		&e.ID, &e.StoreID, &e.ExternalID, &e.EventType, &e.Payload, &e.Signature,
		&e.Status, &e.ReceivedAt, &e.ProcessedAt, &e.Error,
	)
	return e, err
}

// FindWebhookEvent looks up an existing event by its replay-dedup key. Returns
// ErrNotFound if no such event has been recorded.
func (s *Store) FindWebhookEvent(ctx context.Context, storeID uuid.UUID, externalID, eventType string) (WebhookEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events
		WHERE store_id = $1 AND external_id = $2 AND event_type = $3`,
		storeID, externalID, eventType,
	)
	e, err := scanWebhookEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return WebhookEvent{}, ErrNotFound
	}
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("finding webhook event: %w", err)
	}
	return e, nil
}

// InsertWebhookEvent records a newly received event with status=received. The
// unique index on (store_id, external_id, event_type) is the replay-dedup
// enforcement point: a racing duplicate insert returns IsUniqueViolation(err).
func (s *Store) InsertWebhookEvent(ctx context.Context, storeID uuid.UUID, externalID, eventType string, payload json.RawMessage, signature *string) (WebhookEvent, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (store_id, external_id, event_type, payload, signature, status, received_at)
		VALUES ($1, $2, $3, $4, $5, 'received', now())
		RETURNING `+webhookEventColumns,
		storeID, externalID, eventType, payload, signature,
	)
	e, err := scanWebhookEvent(row)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("inserting webhook event: %w", err)
	}
	return e, nil
}

// MarkWebhookEventProcessing transitions received -> processing.
func (s *Store) MarkWebhookEventProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE webhook_events SET status = 'processing' WHERE id = $1 AND status = 'received'`, id)
	if err != nil {
		return fmt.Errorf("marking webhook event processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// MarkWebhookEventProcessed transitions processing -> processed.
func (s *Store) MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events SET status = 'processed', processed_at = $2
		WHERE id = $1 AND status = 'processing'`,
		id, processedAt,
	)
	if err != nil {
		return fmt.Errorf("marking webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// MarkWebhookEventFailed records a processing failure.
func (s *Store) MarkWebhookEventFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events SET status = 'failed', error = $2
		WHERE id = $1`,
		id, errMsg,
	)
	if err != nil {
		return fmt.Errorf("marking webhook event failed: %w", err)
	}
	return nil
}
