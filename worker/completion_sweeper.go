package worker

import (
	"context"
	"log"
	"time"

	"github.com/safariworks/tourbooking/ledger"
)

// sweepBatchSize caps how many bookings one sweep pass completes.
const sweepBatchSize = 500

// CompletionSweeper periodically moves confirmed bookings whose tour date
// has passed into the completed state.
type CompletionSweeper struct {
	ledger   *ledger.BookingLedger
	interval time.Duration
}

func NewCompletionSweeper(bookingLedger *ledger.BookingLedger, interval time.Duration) *CompletionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CompletionSweeper{
		ledger:   bookingLedger,
		interval: interval,
	}
}

// Start runs the sweep until the context is cancelled. One pass runs
// immediately on startup.
func (s *CompletionSweeper) Start(ctx context.Context) error {
	log.Printf("Starting completion sweeper (every %s)...", s.interval)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Completion sweeper shutting down...")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CompletionSweeper) sweep(ctx context.Context) {
	completed, err := s.ledger.CompletePastBookings(ctx, sweepBatchSize)
	if err != nil {
		log.Printf("completion sweep failed: %v", err)
		return
	}
	if completed > 0 {
		log.Printf("completion sweep: %d bookings completed", completed)
	}
}
