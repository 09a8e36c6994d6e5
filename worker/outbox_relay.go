package worker

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/safariworks/tourbooking/model"
	"github.com/safariworks/tourbooking/repository"
)

// MessageWriter is the subset of kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxRelay drains unpublished outbox events to the notification topic.
// Events are marked published only after the broker accepts the batch, so
// delivery is at-least-once; a crash between write and mark replays the
// batch on the next poll.
type OutboxRelay struct {
	repo         repository.BookingRepository
	writer       MessageWriter
	batchSize    int
	pollInterval time.Duration

	// Metrics
	publishedCount int64
}

func NewOutboxRelay(repo repository.BookingRepository, writer MessageWriter, batchSize int, pollInterval time.Duration) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &OutboxRelay{
		repo:         repo,
		writer:       writer,
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

// Start polls the outbox until the context is cancelled
func (r *OutboxRelay) Start(ctx context.Context) error {
	log.Printf("Starting outbox relay (batch %d, poll %s)...", r.batchSize, r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	go r.reportMetrics(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Outbox relay shutting down...")
			return ctx.Err()
		case <-ticker.C:
			n, err := r.DrainOnce(ctx)
			if err != nil {
				log.Printf("outbox drain failed: %v", err)
				continue
			}
			if n > 0 {
				atomic.AddInt64(&r.publishedCount, int64(n))
			}
		}
	}
}

// DrainOnce publishes one batch of unpublished events and marks them
// delivered. Returns the number of events published.
func (r *OutboxRelay) DrainOnce(ctx context.Context) (int, error) {
	events, err := r.repo.ListUnpublishedEvents(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	messages := make([]kafka.Message, 0, len(events))
	published := make([]uuid.UUID, 0, len(events))

	for _, event := range events {
		envelope := model.NotificationMessage{
			EventID:   event.ID,
			EventType: event.EventType,
			Payload:   json.RawMessage(event.Payload),
			EmittedAt: time.Now().UTC(),
		}
		value, err := json.Marshal(envelope)
		if err != nil {
			log.Printf("skipping unmarshalable outbox event %s: %v", event.ID, err)
			continue
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.EventType),
			Value: value,
		})
		published = append(published, event.ID)
	}

	if len(messages) == 0 {
		return 0, nil
	}

	if err := r.writer.WriteMessages(ctx, messages...); err != nil {
		return 0, err
	}

	if err := r.repo.MarkEventsPublished(ctx, published, time.Now().UTC()); err != nil {
		// Already written to the broker; the next drain republishes,
		// which at-least-once consumers tolerate.
		return len(published), err
	}

	return len(published), nil
}

func (r *OutboxRelay) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("outbox relay: %d events published", atomic.LoadInt64(&r.publishedCount))
		}
	}
}
