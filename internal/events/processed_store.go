package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedTTL = 24 * time.Hour

// ProcessedStore records gateway event ids that were already handled, so
// webhook redeliveries are acknowledged without rerunning the dialogue.
type ProcessedStore struct {
	redis *redis.Client
}

func NewProcessedStore(client *redis.Client) *ProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	return &ProcessedStore{redis: client}
}

// MarkProcessed claims an event id for the provider. It returns false when
// another delivery already claimed it. Claim-before-process keeps the check
// and the record atomic under concurrent redeliveries.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ok, err := s.redis.SetNX(ctx, processedKey(provider, eventID), 1, processedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

// AlreadyProcessed checks for a prior claim without making one.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := s.redis.Exists(ctx, processedKey(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return n > 0, nil
}

// Release drops a claim so a failed delivery can be retried by the gateway.
func (s *ProcessedStore) Release(ctx context.Context, provider, eventID string) error {
	if err := s.redis.Del(ctx, processedKey(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("events: release processed: %w", err)
	}
	return nil
}

func processedKey(provider, eventID string) string {
	return fmt.Sprintf("processed:%s:%s", provider, eventID)
}
