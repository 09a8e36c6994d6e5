package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/safariworks/tourbooking/model"
)

// CacheRepository defines the interface for availability caching operations
type CacheRepository interface {
	// Slot snapshot caching for the availability check endpoint.
	// GetSlotSnapshot returns (nil, nil) on a cache miss.
	GetSlotSnapshot(ctx context.Context, slotID uuid.UUID) (*model.SlotSnapshot, error)
	SetSlotSnapshot(ctx context.Context, snapshot *model.SlotSnapshot, ttl time.Duration) error
	InvalidateSlotSnapshot(ctx context.Context, slotID uuid.UUID) error

	// Health check
	Ping(ctx context.Context) error
}
