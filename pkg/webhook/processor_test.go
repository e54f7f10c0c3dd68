package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/internal/repository/memory"
	"cancelflow-be/internal/repository/specification"
	"cancelflow-be/internal/repository/unitofwork"
	"cancelflow-be/internal/testutil"
	"cancelflow-be/pkg/audit"
	"cancelflow-be/pkg/events"
	"cancelflow-be/pkg/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type harness struct {
	processor *webhook.Processor
	factory   unitofwork.RepositoryFactory

	mu       sync.Mutex
	received []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithSink(t, nil)
}

func newHarnessWithSink(t *testing.T, sink webhook.Sink) *harness {
	t.Helper()
	db := testutil.NewTestDB(t)
	factory := unitofwork.NewRepositoryFactory(db)
	bus := events.NewWatermillBus(logger.NewNopLogger())
	t.Cleanup(func() { _ = bus.Close() })

	h := &harness{factory: factory}
	require.NoError(t, bus.On(events.WebhookReceived, func(ctx context.Context, event events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.received = append(h.received, event)
		return nil
	}))

	h.processor = webhook.NewProcessor(webhook.Config{
		Secrets:      map[string]string{"netflix": "nf-secret", "spotify": "sp-secret", "stripe": "st-secret", "acme": "acme-secret"},
		ReplayWindow: 5 * time.Minute,
		Now:          func() time.Time { return now },
		Sink:         sink,
	}, memory.NewReplayLedger(time.Hour, time.Hour), bus, audit.NewTrail(factory, bus, logger.NewNopLogger()), logger.NewNopLogger())
	return h
}

func (h *harness) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

func hmacHex(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func netflixDelivery(t *testing.T, ts time.Time, secret string) ([]byte, http.Header) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event_type":      "subscription.cancelled",
		"subscription_id": "nf-sub-1",
		"user_id":         "u-1",
		"effective_date":  "2026-11-30",
		"timestamp":       ts.Unix(),
		"correlation_id":  "wh_abc",
	})
	require.NoError(t, err)

	headers := http.Header{}
	headers.Set("X-Netflix-Signature", hmacHex(secret, string(body)))
	headers.Set("X-Netflix-Timestamp", strconv.FormatInt(ts.Unix(), 10))
	return body, headers
}

func TestProcessor_Validate(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name     string
		provider string
		payload  map[string]interface{}
		valid    bool
	}{
		{"netflix ok", "netflix", map[string]interface{}{"event_type": "x", "subscription_id": "s", "user_id": "u"}, true},
		{"netflix missing user", "netflix", map[string]interface{}{"event_type": "x", "subscription_id": "s"}, false},
		{"spotify ok", "spotify", map[string]interface{}{"type": "x", "data": map[string]interface{}{"subscription_id": "s", "user_id": "u"}}, true},
		{"spotify missing data", "spotify", map[string]interface{}{"type": "x"}, false},
		{"stripe ok", "stripe", map[string]interface{}{"id": "evt_1", "type": "customer.subscription.deleted", "created": float64(now.Unix()), "data": map[string]interface{}{"object": map[string]interface{}{"id": "sub_1"}}}, true},
		{"stripe missing object", "stripe", map[string]interface{}{"id": "evt_1", "type": "t", "created": float64(now.Unix()), "data": map[string]interface{}{}}, false},
		{"generic ok", "acme", map[string]interface{}{"type": "x", "subscription_id": "s"}, true},
		{"unconfigured provider", "nobody", map[string]interface{}{"type": "x", "subscription_id": "s"}, false},
		{"stale payload timestamp", "netflix", map[string]interface{}{"event_type": "x", "subscription_id": "s", "user_id": "u", "timestamp": float64(now.Add(-6 * time.Minute).Unix())}, false},
		{"future payload timestamp", "netflix", map[string]interface{}{"event_type": "x", "subscription_id": "s", "user_id": "u", "timestamp": float64(now.Add(6 * time.Minute).Unix())}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := h.processor.Validate(tt.provider, tt.payload)
			assert.Equal(t, tt.valid, result.Valid, result.Error)
			if tt.valid {
				assert.NotNil(t, result.Normalized)
			} else {
				assert.NotEmpty(t, result.Error)
			}
		})
	}
}

func TestProcessor_VerifyAuthenticity(t *testing.T) {
	h := newHarness(t)

	t.Run("netflix valid", func(t *testing.T) {
		body, headers := netflixDelivery(t, now, "nf-secret")
		assert.True(t, h.processor.VerifyAuthenticity("netflix", body, headers).Valid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		body, headers := netflixDelivery(t, now, "other")
		result := h.processor.VerifyAuthenticity("netflix", body, headers)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Error, "signature")
	})

	t.Run("missing signature", func(t *testing.T) {
		body, headers := netflixDelivery(t, now, "nf-secret")
		headers.Del("X-Netflix-Signature")
		assert.False(t, h.processor.VerifyAuthenticity("netflix", body, headers).Valid)
	})

	t.Run("tampered body", func(t *testing.T) {
		body, headers := netflixDelivery(t, now, "nf-secret")
		body[len(body)-2] = 'X'
		assert.False(t, h.processor.VerifyAuthenticity("netflix", body, headers).Valid)
	})

	t.Run("spotify prefixed signature", func(t *testing.T) {
		body := []byte(`{"type":"subscription.cancelled","data":{"subscription_id":"sp-1","user_id":"u"}}`)
		headers := http.Header{}
		headers.Set("X-Spotify-Signature", "sha256="+hmacHex("sp-secret", string(body)))
		headers.Set("X-Spotify-Timestamp", strconv.FormatInt(now.Add(-time.Minute).Unix(), 10))
		assert.True(t, h.processor.VerifyAuthenticity("spotify", body, headers).Valid)

		headers.Set("X-Spotify-Signature", hmacHex("sp-secret", string(body)))
		assert.False(t, h.processor.VerifyAuthenticity("spotify", body, headers).Valid, "scheme prefix is required")
	})

	t.Run("spotify without any timestamp", func(t *testing.T) {
		body := []byte(`{"type":"subscription.cancelled","data":{"subscription_id":"sp-1","user_id":"u"}}`)
		headers := http.Header{}
		headers.Set("X-Spotify-Signature", "sha256="+hmacHex("sp-secret", string(body)))
		result := h.processor.VerifyAuthenticity("spotify", body, headers)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Error, "timestamp")
	})

	t.Run("stripe scheme", func(t *testing.T) {
		body := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","created":1,"data":{"object":{"id":"sub_1"}}}`)
		ts := strconv.FormatInt(now.Unix(), 10)
		headers := http.Header{}
		headers.Set("Stripe-Signature", "t="+ts+",v1=deadbeef,v1="+hmacHex("st-secret", ts, ".", string(body)))
		assert.True(t, h.processor.VerifyAuthenticity("stripe", body, headers).Valid)

		old := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
		headers.Set("Stripe-Signature", "t="+old+",v1="+hmacHex("st-secret", old, ".", string(body)))
		result := h.processor.VerifyAuthenticity("stripe", body, headers)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Error, "replay")
	})

	t.Run("fails closed without secret", func(t *testing.T) {
		processor := webhook.NewProcessor(webhook.Config{Now: func() time.Time { return now }}, memory.NewReplayLedger(time.Hour, time.Hour), nil, nil, logger.NewNopLogger())
		body, headers := netflixDelivery(t, now, "nf-secret")
		result := processor.VerifyAuthenticity("netflix", body, headers)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Error, "secret")
	})
}

func TestProcessor_Extract(t *testing.T) {
	h := newHarness(t)

	payload := map[string]interface{}{
		"id":      "evt_9",
		"type":    "customer.subscription.updated",
		"created": float64(now.Unix()),
		"data": map[string]interface{}{"object": map[string]interface{}{
			"id":                   "sub_9",
			"customer":             "cus_9",
			"cancel_at_period_end": true,
			"current_period_end":   float64(now.Add(48 * time.Hour).Unix()),
			"metadata":             map[string]interface{}{"correlation_id": "wh_9", "user_id": "u-9"},
		}},
	}

	data, err := h.processor.Extract("stripe", payload, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusCancelled, data.Status)
	assert.Equal(t, "sub_9", data.SubscriptionID)
	assert.Equal(t, "cus_9", data.CustomerID)
	assert.Equal(t, "wh_9", data.CorrelationID)
	assert.Equal(t, "u-9", data.UserID)
	require.NotNil(t, data.EffectiveDate)
	assert.True(t, data.EffectiveDate.Equal(now.Add(48*time.Hour)))
	assert.True(t, data.Timestamp.Equal(now))

	roundTrip := webhook.FromMap(data.ToMap())
	assert.Equal(t, data.DedupeKey(), roundTrip.DedupeKey())
	assert.Equal(t, data.CorrelationID, roundTrip.CorrelationID)
}

func TestProcessor_IngestAcceptsOnceAndDedupes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	body, headers := netflixDelivery(t, now.Add(-time.Minute), "nf-secret")

	first := h.processor.Ingest(ctx, "netflix", body, headers)
	assert.Equal(t, http.StatusOK, first.Status)
	assert.True(t, first.Accepted)
	assert.False(t, first.Duplicate)
	require.NotNil(t, first.Event)
	assert.Equal(t, "wh_abc", first.Event.CorrelationID)
	assert.Equal(t, webhook.StatusCancelled, first.Event.Status)

	second := h.processor.Ingest(ctx, "Netflix", body, headers)
	assert.Equal(t, http.StatusOK, second.Status)
	assert.True(t, second.Duplicate)

	require.Eventually(t, func() bool { return h.eventCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.eventCount())

	uow := h.factory.NewUnitOfWork(ctx)
	key := first.Event.DedupeKey()
	accepted, err := uow.AuditLogRepository().FindAll(ctx, specification.ByEntity{EntityType: "webhook", EntityID: key})
	require.NoError(t, err)
	require.Len(t, accepted, 2)
	assert.ElementsMatch(t, []string{"webhook.accepted", "webhook.duplicate"}, []string{accepted[0].Action, accepted[1].Action})
}

func TestProcessor_IngestRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	staleBody, staleHeaders := netflixDelivery(t, now.Add(-10*time.Minute), "nf-secret")
	badSigBody, badSigHeaders := netflixDelivery(t, now, "wrong")

	tests := []struct {
		name     string
		provider string
		body     []byte
		headers  http.Header
		status   int
	}{
		{"stale timestamp", "netflix", staleBody, staleHeaders, http.StatusBadRequest},
		{"bad signature", "netflix", badSigBody, badSigHeaders, http.StatusUnauthorized},
		{"invalid json", "netflix", []byte("{"), http.Header{}, http.StatusBadRequest},
		{"missing fields", "netflix", []byte(`{"event_type":"x"}`), http.Header{}, http.StatusBadRequest},
		{"unknown provider", "nobody", []byte(`{"type":"x","subscription_id":"s"}`), http.Header{}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := h.processor.Ingest(ctx, tt.provider, tt.body, tt.headers)
			assert.Equal(t, tt.status, outcome.Status)
			assert.False(t, outcome.Accepted)
			assert.NotEmpty(t, outcome.Error)
		})
	}

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.eventCount())

	count, err := h.factory.NewUnitOfWork(ctx).AuditLogRepository().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rejected deliveries leave no trace")
}

// switchSink fails while err is set and records what it accepted.
type switchSink struct {
	mu       sync.Mutex
	err      error
	accepted []webhook.ExtractedData
}

func (s *switchSink) AcceptWebhook(_ context.Context, event webhook.ExtractedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.accepted = append(s.accepted, event)
	return nil
}

func (s *switchSink) set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *switchSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accepted)
}

func TestProcessor_IngestSinkFailureAllowsRedelivery(t *testing.T) {
	sink := &switchSink{err: errors.New("job store unavailable")}
	h := newHarnessWithSink(t, sink)
	ctx := context.Background()
	body, headers := netflixDelivery(t, now, "nf-secret")

	failed := h.processor.Ingest(ctx, "netflix", body, headers)
	assert.Equal(t, http.StatusInternalServerError, failed.Status)
	assert.False(t, failed.Accepted)
	assert.Zero(t, sink.count())

	sink.set(nil)
	redelivered := h.processor.Ingest(ctx, "netflix", body, headers)
	assert.Equal(t, http.StatusOK, redelivered.Status)
	assert.True(t, redelivered.Accepted)
	assert.False(t, redelivered.Duplicate, "the failed delivery must not be remembered")
	assert.Equal(t, 1, sink.count())

	again := h.processor.Ingest(ctx, "netflix", body, headers)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 1, sink.count())

	require.Eventually(t, func() bool { return h.eventCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	key := redelivered.Event.DedupeKey()
	accepted, err := h.factory.NewUnitOfWork(ctx).AuditLogRepository().Count(ctx,
		specification.ByEntity{EntityType: "webhook", EntityID: key},
		specification.Filter("action", "webhook.accepted"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, accepted)
}
