package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/internal/pkg/mailer"
	"cancelflow-be/internal/websocket"
	"cancelflow-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	block bool
}

func (s *recordingSender) Send(ctx context.Context, n Notification) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestNotify_FansOutToRequestedChannels(t *testing.T) {
	n := NewNotifier(time.Second, logger.NewNopLogger())
	push, email, event := &recordingSender{}, &recordingSender{}, &recordingSender{}
	n.Register(ChannelPush, push)
	n.Register(ChannelEmail, email)
	n.Register(ChannelEvent, event)

	to := Recipient{UserID: uuid.New()}
	n.Notify(context.Background(), to, events.CancellationCompleted, map[string]interface{}{"request_id": "r"}, ChannelPush, ChannelEvent)
	require.NoError(t, n.Wait(context.Background()))

	assert.Equal(t, 1, push.count())
	assert.Equal(t, 1, event.count())
	assert.Equal(t, 0, email.count())
	assert.Equal(t, to.UserID, push.got[0].To.UserID)
}

func TestNotify_FailuresAndTimeoutsStayInside(t *testing.T) {
	n := NewNotifier(20*time.Millisecond, logger.NewNopLogger())
	n.Register(ChannelPush, &recordingSender{err: errors.New("hub down")})
	n.Register(ChannelEmail, &recordingSender{block: true})
	healthy := &recordingSender{}
	n.Register(ChannelEvent, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, Recipient{UserID: uuid.New()}, "x", nil)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, n.Wait(waitCtx))
	assert.Equal(t, 1, healthy.count())
}

type fakeHub struct {
	user uuid.UUID
	msg  websocket.Message
}

func (h *fakeHub) Send(_ context.Context, userID uuid.UUID, msg websocket.Message) error {
	h.user, h.msg = userID, msg
	return nil
}

func TestPushSender(t *testing.T) {
	hub := &fakeHub{}
	user := uuid.New()
	err := NewPushSender(hub).Send(context.Background(), Notification{To: Recipient{UserID: user}, Type: "cancellation.failed"})
	require.NoError(t, err)
	assert.Equal(t, user, hub.user)
	assert.Equal(t, "cancellation.failed", hub.msg.Type)
}

type fakeMailer struct {
	to    string
	email mailer.StatusEmail
	calls int
}

func (m *fakeMailer) SendStatusUpdate(to string, email mailer.StatusEmail) error {
	m.to, m.email = to, email
	m.calls++
	return nil
}

func TestEmailSender(t *testing.T) {
	instructions := &entity.ManualInstructionSet{Steps: []entity.InstructionStep{{Order: 1, Title: "Sign in", Description: "Use the account that pays"}}}

	tests := []struct {
		name      string
		to        Recipient
		typ       string
		payload   map[string]interface{}
		wantCalls int
		check     func(t *testing.T, e mailer.StatusEmail)
	}{
		{
			name:      "completed carries the confirmation code",
			to:        Recipient{Email: "a@example.com"},
			typ:       events.CancellationCompleted,
			payload:   map[string]interface{}{"provider": "Netflix", "confirmation_code": "API-1-ABC", "request_id": "r-1"},
			wantCalls: 1,
			check: func(t *testing.T, e mailer.StatusEmail) {
				assert.Contains(t, e.Lines, "Confirmation code: API-1-ABC")
				assert.Equal(t, "https://app.test/cancellations/r-1", e.LinkURL)
			},
		},
		{
			name:      "manual required lists the steps",
			to:        Recipient{Email: "a@example.com"},
			typ:       events.CancellationManualRequired,
			payload:   map[string]interface{}{"instructions": instructions, "message": "Please finish this yourself."},
			wantCalls: 1,
			check: func(t *testing.T, e mailer.StatusEmail) {
				assert.Equal(t, []string{"Sign in: Use the account that pays"}, e.Steps)
			},
		},
		{name: "no address", to: Recipient{}, typ: events.CancellationCompleted, wantCalls: 0},
		{name: "types without a template are skipped", to: Recipient{Email: "a@example.com"}, typ: events.CancellationProcessing, wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMailer{}
			err := NewEmailSender(m, "https://app.test").Send(context.Background(), Notification{To: tt.to, Type: tt.typ, Payload: tt.payload})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, m.calls)
			if tt.check != nil {
				tt.check(t, m.email)
			}
		})
	}
}

type capturePublisher struct{ got events.Event }

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.got = e
	return nil
}

func TestEventSender(t *testing.T) {
	pub := &capturePublisher{}
	require.NoError(t, NewEventSender(pub).Send(context.Background(), Notification{To: Recipient{UserID: uuid.New()}, Type: "cancellation.completed"}))
	require.NotNil(t, pub.got)
	assert.Equal(t, events.NotificationRequested, pub.got.EventType())
}
