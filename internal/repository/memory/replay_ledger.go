package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// ReplayLedger is the in-process webhook dedupe ledger backed by go-cache.
type ReplayLedger struct {
	cache *cache.Cache
}

func NewReplayLedger(defaultTTL, cleanupInterval time.Duration) *ReplayLedger {
	return &ReplayLedger{cache: cache.New(defaultTTL, cleanupInterval)}
}

// Claim relies on cache.Add failing for keys that are already present.
func (l *ReplayLedger) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := l.cache.Add(key, time.Now(), ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (l *ReplayLedger) Release(ctx context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}

func (l *ReplayLedger) Len() int {
	return l.cache.ItemCount()
}
