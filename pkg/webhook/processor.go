package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/pkg/audit"
	"cancelflow-be/pkg/events"
)

const (
	module              = "Webhook"
	defaultReplayWindow = 5 * time.Minute
)

// Sink takes an accepted webhook into durable processing. An error releases the
// replay key and answers 500 so the provider redelivers.
type Sink interface {
	AcceptWebhook(ctx context.Context, event ExtractedData) error
}

type Config struct {
	// Secrets are keyed by normalized provider name. Read-only after construction.
	Secrets      map[string]string
	ReplayWindow time.Duration
	Now          func() time.Time
	// Sink is optional. Without one the bus emit is the only hand-off.
	Sink Sink
}

// Processor is the ingestion pipeline: validate, verify, extract, dedupe, hand off, emit.
type Processor struct {
	adapters map[string]Adapter
	secrets  map[string]string
	window   time.Duration
	now      func() time.Time

	ledger Ledger
	sink   Sink
	bus    events.Bus
	trail  *audit.Trail
	logger logger.ILogger
}

func NewProcessor(cfg Config, ledger Ledger, bus events.Bus, trail *audit.Trail, log logger.ILogger) *Processor {
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = defaultReplayWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secrets := make(map[string]string, len(cfg.Secrets))
	for name, secret := range cfg.Secrets {
		secrets[entity.NormalizeProviderName(name)] = secret
	}

	adapters := map[string]Adapter{}
	for _, a := range []Adapter{netflixAdapter{}, spotifyAdapter{}, stripeAdapter{}} {
		adapters[a.Name()] = a
	}

	return &Processor{
		adapters: adapters,
		secrets:  secrets,
		window:   cfg.ReplayWindow,
		now:      cfg.Now,
		ledger:   ledger,
		sink:     cfg.Sink,
		bus:      bus,
		trail:    trail,
		logger:   log,
	}
}

// adapter returns the dedicated adapter or a generic one for configured providers.
func (p *Processor) adapter(provider string) (Adapter, error) {
	name := entity.NormalizeProviderName(provider)
	if a, ok := p.adapters[name]; ok {
		return a, nil
	}
	if _, ok := p.secrets[name]; ok {
		return genericAdapter{name: name}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

func (p *Processor) fresh(t time.Time) error {
	delta := p.now().Sub(t)
	if delta < 0 {
		delta = -delta
	}
	if delta > p.window {
		return ErrStale
	}
	return nil
}

// Validate checks the provider schema and, when the payload carries one, the timestamp.
func (p *Processor) Validate(provider string, payload map[string]interface{}) ValidationResult {
	adapter, err := p.adapter(provider)
	if err != nil {
		return ValidationResult{Error: err.Error()}
	}
	if payload == nil {
		return ValidationResult{Error: "payload must be a JSON object"}
	}
	if err := adapter.Validate(payload); err != nil {
		return ValidationResult{Error: err.Error()}
	}
	if t, ok := adapter.Timestamp(payload, http.Header{}); ok {
		if err := p.fresh(t); err != nil {
			return ValidationResult{Error: err.Error()}
		}
	}

	normalized := adapter.Extract(payload)
	return ValidationResult{Valid: true, Normalized: &normalized}
}

// VerifyAuthenticity checks the signature and replay window. It fails closed.
func (p *Processor) VerifyAuthenticity(provider string, body []byte, headers http.Header) VerifyResult {
	adapter, err := p.adapter(provider)
	if err != nil {
		return VerifyResult{Error: err.Error()}
	}

	secret := p.secrets[adapter.Name()]
	if secret == "" {
		return VerifyResult{Error: ErrMissingSecret.Error()}
	}
	if err := adapter.Verify(body, headers, secret); err != nil {
		return VerifyResult{Error: err.Error()}
	}

	var payload map[string]interface{}
	_ = json.Unmarshal(body, &payload)
	t, ok := adapter.Timestamp(payload, headers)
	if !ok {
		return VerifyResult{Error: ErrNoTimestamp.Error()}
	}
	if err := p.fresh(t); err != nil {
		return VerifyResult{Error: err.Error()}
	}
	return VerifyResult{Valid: true}
}

// Extract normalizes a payload that already passed Validate.
func (p *Processor) Extract(provider string, payload map[string]interface{}, headers http.Header) (ExtractedData, error) {
	adapter, err := p.adapter(provider)
	if err != nil {
		return ExtractedData{}, err
	}
	data := adapter.Extract(payload)
	if t, ok := adapter.Timestamp(payload, headers); ok {
		data.Timestamp = t
	}
	return data, nil
}

// Ingest runs the whole pipeline. Nothing is recorded or emitted unless every check passes.
func (p *Processor) Ingest(ctx context.Context, provider string, body []byte, headers http.Header) Outcome {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return p.reject(provider, http.StatusBadRequest, "invalid JSON body")
	}

	if v := p.Validate(provider, payload); !v.Valid {
		status := http.StatusBadRequest
		if errors.Is(p.adapterErr(provider), ErrUnknownProvider) {
			status = http.StatusNotFound
		}
		return p.reject(provider, status, v.Error)
	}

	if v := p.VerifyAuthenticity(provider, body, headers); !v.Valid {
		return p.reject(provider, http.StatusUnauthorized, v.Error)
	}

	data, err := p.Extract(provider, payload, headers)
	if err != nil {
		return p.reject(provider, http.StatusBadRequest, err.Error())
	}

	key := data.DedupeKey()
	first, err := p.ledger.Claim(ctx, key, 2*p.window)
	if err != nil {
		p.logger.Error(module, "Replay ledger unavailable", map[string]interface{}{"provider": data.Provider, "error": err.Error()})
		return Outcome{Status: http.StatusInternalServerError, Error: "replay ledger unavailable"}
	}
	if !first {
		p.logger.Info(module, "Duplicate webhook ignored", map[string]interface{}{
			"provider":        data.Provider,
			"subscription_id": data.SubscriptionID,
			"event_type":      data.EventType,
		})
		p.trail.Record(ctx, audit.Entry{
			Kind:       entity.AuditKindWebhook,
			EntityType: "webhook",
			EntityID:   key,
			Action:     "webhook.duplicate",
			Actor:      data.Provider,
			Metadata:   map[string]interface{}{"event_type": data.EventType, "subscription_id": data.SubscriptionID},
		})
		return Outcome{Status: http.StatusOK, Accepted: true, Duplicate: true, Event: &data}
	}

	if p.sink != nil {
		if err := p.sink.AcceptWebhook(ctx, data); err != nil {
			p.release(ctx, key)
			p.logger.Error(module, "Failed to hand off webhook", map[string]interface{}{"provider": data.Provider, "error": err.Error()})
			return Outcome{Status: http.StatusInternalServerError, Error: "failed to process webhook"}
		}
	}

	if err := p.bus.Emit(ctx, events.New(events.WebhookReceived, data.ToMap())); err != nil {
		p.logger.Error(module, "Failed to emit webhook event", map[string]interface{}{"provider": data.Provider, "error": err.Error()})
		if p.sink == nil {
			p.release(ctx, key)
			return Outcome{Status: http.StatusInternalServerError, Error: "failed to process webhook"}
		}
	}

	p.trail.Record(ctx, audit.Entry{
		Kind:       entity.AuditKindWebhook,
		EntityType: "webhook",
		EntityID:   key,
		Action:     "webhook.accepted",
		Actor:      data.Provider,
		Metadata: map[string]interface{}{
			"event_type":      data.EventType,
			"status":          string(data.Status),
			"subscription_id": data.SubscriptionID,
			"correlation_id":  data.CorrelationID,
		},
	})
	p.logger.Info(module, "Webhook accepted", map[string]interface{}{
		"provider":        data.Provider,
		"event_type":      data.EventType,
		"subscription_id": data.SubscriptionID,
	})
	return Outcome{Status: http.StatusOK, Accepted: true, Event: &data}
}

func (p *Processor) release(ctx context.Context, key string) {
	if err := p.ledger.Release(ctx, key); err != nil {
		p.logger.Warn(module, "Failed to release ledger key", map[string]interface{}{"error": err.Error()})
	}
}

func (p *Processor) adapterErr(provider string) error {
	_, err := p.adapter(provider)
	return err
}

func (p *Processor) reject(provider string, status int, reason string) Outcome {
	p.logger.Warn(module, "Webhook rejected", map[string]interface{}{
		"provider": provider,
		"status":   status,
		"reason":   reason,
	})
	return Outcome{Status: status, Error: reason}
}
