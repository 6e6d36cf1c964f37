package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultProcessedTTL = 24 * time.Hour

// ProcessedStore records webhook events that were already handled, so a
// redelivered event is relayed at most once.
type ProcessedStore struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewProcessedStore creates a Redis-backed store. Entries expire after ttl.
func NewProcessedStore(client *redis.Client, ttl time.Duration) *ProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = defaultProcessedTTL
	}
	return &ProcessedStore{redis: client, ttl: ttl, prefix: "processed_event"}
}

// MarkProcessed claims an event id, returning false if it was already claimed.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return true, nil
	}
	ok, err := s.redis.SetNX(ctx, s.key(provider, eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}

func (s *ProcessedStore) key(provider, eventID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, provider, eventID)
}
