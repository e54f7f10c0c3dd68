// Package webhook validates, authenticates and normalizes inbound provider callbacks.
package webhook

import (
	"context"
	"errors"
	"time"
)

// EventStatus is the normalized meaning of a provider callback.
type EventStatus string

const (
	StatusCancelled EventStatus = "cancelled"
	StatusFailed    EventStatus = "failed"
	StatusPending   EventStatus = "pending"
	StatusIgnored   EventStatus = "ignored"
)

var (
	ErrUnknownProvider = errors.New("webhook: unknown provider")
	ErrMissingSecret   = errors.New("webhook: no signing secret configured")
	ErrMissingSig      = errors.New("webhook: signature header is required")
	ErrBadSignature    = errors.New("webhook: signature verification failed")
	ErrStale           = errors.New("webhook: timestamp outside replay window")
	ErrNoTimestamp     = errors.New("webhook: timestamp is required")
)

// ExtractedData is the canonical form of a provider callback.
type ExtractedData struct {
	Provider       string                 `json:"provider"`
	EventType      string                 `json:"event_type"`
	SubscriptionID string                 `json:"subscription_id,omitempty"`
	UserID         string                 `json:"user_id,omitempty"`
	CustomerID     string                 `json:"customer_id,omitempty"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	Status         EventStatus            `json:"status"`
	EffectiveDate  *time.Time             `json:"effective_date,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// DedupeKey identifies a delivery: provider + subscription + event type + timestamp.
func (d ExtractedData) DedupeKey() string {
	return d.Provider + "|" + d.SubscriptionID + "|" + d.EventType + "|" + d.Timestamp.UTC().Format(time.RFC3339Nano)
}

// ToMap is the bus payload for webhook.received.
func (d ExtractedData) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"provider":        d.Provider,
		"event_type":      d.EventType,
		"subscription_id": d.SubscriptionID,
		"user_id":         d.UserID,
		"customer_id":     d.CustomerID,
		"correlation_id":  d.CorrelationID,
		"status":          string(d.Status),
		"timestamp":       d.Timestamp.UTC().Format(time.RFC3339Nano),
		"dedupe_key":      d.DedupeKey(),
	}
	if d.EffectiveDate != nil {
		m["effective_date"] = d.EffectiveDate.UTC().Format(time.RFC3339)
	}
	if d.Metadata != nil {
		m["metadata"] = d.Metadata
	}
	return m
}

// FromMap rebuilds ExtractedData from a webhook.received payload.
func FromMap(m map[string]interface{}) ExtractedData {
	str := func(key string) string {
		v, _ := m[key].(string)
		return v
	}
	d := ExtractedData{
		Provider:       str("provider"),
		EventType:      str("event_type"),
		SubscriptionID: str("subscription_id"),
		UserID:         str("user_id"),
		CustomerID:     str("customer_id"),
		CorrelationID:  str("correlation_id"),
		Status:         EventStatus(str("status")),
	}
	if t, err := time.Parse(time.RFC3339Nano, str("timestamp")); err == nil {
		d.Timestamp = t
	}
	if t, err := time.Parse(time.RFC3339, str("effective_date")); err == nil {
		d.EffectiveDate = &t
	}
	if meta, ok := m["metadata"].(map[string]interface{}); ok {
		d.Metadata = meta
	}
	return d
}

type ValidationResult struct {
	Valid      bool
	Error      string
	Normalized *ExtractedData
}

type VerifyResult struct {
	Valid bool
	Error string
}

// Outcome is the result of the full ingestion pipeline. Status is the HTTP status to answer with.
type Outcome struct {
	Status    int
	Accepted  bool
	Duplicate bool
	Error     string
	Event     *ExtractedData
}

// Ledger remembers which deliveries were already accepted.
type Ledger interface {
	// Claim records key and reports true only for the first caller within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a failed delivery can be retried by the sender.
	Release(ctx context.Context, key string) error
}
