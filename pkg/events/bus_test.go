package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cancelflow-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestWatermillBus_EmitOn(t *testing.T) {
	bus := NewWatermillBus(logger.NewNopLogger())
	defer bus.Close()

	received := make(chan Event, 1)
	require.NoError(t, bus.On(CancellationCompleted, func(ctx context.Context, event Event) error {
		received <- event
		return nil
	}))

	require.NoError(t, bus.Emit(context.Background(), New(CancellationCompleted, map[string]interface{}{"request_id": "r-1"})))

	select {
	case event := <-received:
		assert.Equal(t, CancellationCompleted, event.EventType())
		assert.Equal(t, "r-1", event.Payload()["request_id"])
		assert.False(t, event.Timestamp().IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillBus_HandlerFailureDoesNotBlockNextEvent(t *testing.T) {
	bus := NewWatermillBus(logger.NewNopLogger())
	defer bus.Close()

	var mu sync.Mutex
	calls := 0
	require.NoError(t, bus.On(WebhookReceived, func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			panic("first delivery explodes")
		}
		return errors.New("still failing")
	}))

	require.NoError(t, bus.Emit(context.Background(), New(WebhookReceived, nil)))
	require.NoError(t, bus.Emit(context.Background(), New(WebhookReceived, nil)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestForward(t *testing.T) {
	bus := NewWatermillBus(logger.NewNopLogger())
	defer bus.Close()

	pub := &capturePublisher{err: errors.New("nats down")}
	require.NoError(t, Forward(bus, pub, logger.NewNopLogger(), CancellationCompleted, CancellationManualRequired))

	require.NoError(t, bus.Emit(context.Background(), New(CancellationCompleted, nil)))
	require.NoError(t, bus.Emit(context.Background(), New(CancellationManualRequired, nil)))
	require.NoError(t, bus.Emit(context.Background(), New(AnalyticsTracked, nil)))

	require.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}
