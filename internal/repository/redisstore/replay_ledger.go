// Package redisstore holds the Redis-backed shared state used when several
// instances run side by side.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayLedger dedupes webhook deliveries across instances with SET NX.
type ReplayLedger struct {
	client redis.UniversalClient
	prefix string
}

func NewReplayLedger(client redis.UniversalClient) *ReplayLedger {
	return &ReplayLedger{client: client, prefix: "cancelflow:webhook:"}
}

func (l *ReplayLedger) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim webhook key: %w", err)
	}
	return ok, nil
}

func (l *ReplayLedger) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+key).Err()
}
