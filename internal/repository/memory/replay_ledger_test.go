package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayLedger_ClaimOnce(t *testing.T) {
	ctx := context.Background()
	ledger := NewReplayLedger(time.Minute, time.Minute)

	first, err := ledger.Claim(ctx, "netflix|sub-1|cancelled|t", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := ledger.Claim(ctx, "netflix|sub-1|cancelled|t", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, ledger.Release(ctx, "netflix|sub-1|cancelled|t"))
	afterRelease, err := ledger.Claim(ctx, "netflix|sub-1|cancelled|t", time.Minute)
	require.NoError(t, err)
	assert.True(t, afterRelease)
}

func TestReplayLedger_Expires(t *testing.T) {
	ctx := context.Background()
	ledger := NewReplayLedger(time.Minute, time.Minute)

	ok, _ := ledger.Claim(ctx, "k", 20*time.Millisecond)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	ok, _ = ledger.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestReplayLedger_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	ledger := NewReplayLedger(time.Minute, time.Minute)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := ledger.Claim(ctx, "same", time.Minute); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load())
	assert.Equal(t, 1, ledger.Len())
}
