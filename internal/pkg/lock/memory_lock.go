package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is a process-local Locker with the same TTL semantics as RedisLocker.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryEntry), clock: time.Now}
}

func (l *MemoryLocker) TryObtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return nil, ErrNotObtained
	}

	token := uuid.NewString()
	l.held[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, token: token}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (m *memoryLease) Release(ctx context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	// Only the owner may release; an expired lease may already belong to someone else
	if entry, ok := m.locker.held[m.key]; ok && entry.token == m.token {
		delete(m.locker.held, m.key)
	}
	return nil
}
