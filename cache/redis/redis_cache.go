package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/safariworks/tourbooking/model"
)

type RedisCacheRepository struct {
	client *redis.Client
}

func NewRedisCacheRepository(redisURL, password string, db int) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: password,
		DB:       db,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCacheRepository{client: client}, nil
}

// Cache key generator
func (r *RedisCacheRepository) slotSnapshotKey(slotID uuid.UUID) string {
	return fmt.Sprintf("slot_snapshot:%s", slotID.String())
}

// GetSlotSnapshot retrieves a slot capacity snapshot from cache
func (r *RedisCacheRepository) GetSlotSnapshot(ctx context.Context, slotID uuid.UUID) (*model.SlotSnapshot, error) {
	key := r.slotSnapshotKey(slotID)
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var snapshot model.SlotSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// SetSlotSnapshot stores a slot capacity snapshot in cache
func (r *RedisCacheRepository) SetSlotSnapshot(ctx context.Context, snapshot *model.SlotSnapshot, ttl time.Duration) error {
	key := r.slotSnapshotKey(snapshot.SlotID)
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, key, data, ttl).Err()
}

// InvalidateSlotSnapshot removes a slot snapshot after capacity changes
func (r *RedisCacheRepository) InvalidateSlotSnapshot(ctx context.Context, slotID uuid.UUID) error {
	key := r.slotSnapshotKey(slotID)
	return r.client.Del(ctx, key).Err()
}

// Ping checks if Redis is healthy
func (r *RedisCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
