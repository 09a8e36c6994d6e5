package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/safariworks/tourbooking/model"
)

// AppendOutboxEvent writes an event row. Must run in the same transaction as
// the state transition it describes.
func (r *PostgresBookingRepository) AppendOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append outbox event: %w", err)
	}
	return nil
}

// ListUnpublishedEvents returns the oldest unpublished events, capped at
// limit. SKIP LOCKED lets multiple relay workers drain without contending.
func (r *PostgresBookingRepository) ListUnpublishedEvents(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Raw(`SELECT * FROM outbox_events
		     WHERE published_at IS NULL
		     ORDER BY created_at ASC
		     LIMIT ?
		     FOR UPDATE SKIP LOCKED`, limit).
		Scan(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unpublished events: %w", err)
	}
	return events, nil
}

// MarkEventsPublished stamps the given events as delivered
func (r *PostgresBookingRepository) MarkEventsPublished(ctx context.Context, eventIDs []uuid.UUID, publishedAt time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		ids = append(ids, id.String())
	}
	err := r.db.WithContext(ctx).
		Exec(`UPDATE outbox_events SET published_at = ? WHERE id = ANY(?)`,
			publishedAt, pq.Array(ids)).Error
	if err != nil {
		return fmt.Errorf("failed to mark events published: %w", err)
	}
	return nil
}
