package lock

import (
	"context"
	"errors"
	"time"
)

var ErrNotObtained = errors.New("lock: not obtained")

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes work on a key across workers.
type Locker interface {
	// TryObtain makes a single attempt and returns ErrNotObtained when the key is held.
	TryObtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

const retryInterval = 50 * time.Millisecond

// Obtain polls TryObtain until the key is free, wait elapses or ctx ends.
func Obtain(ctx context.Context, locker Locker, key string, ttl, wait time.Duration) (Lease, error) {
	deadline := time.Now().Add(wait)
	for {
		lease, err := locker.TryObtain(ctx, key, ttl)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, ErrNotObtained) || time.Now().After(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}
