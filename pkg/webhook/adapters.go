package webhook

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Netflix: {event_type, subscription_id, user_id, effective_date?, timestamp?}
// X-Netflix-Signature = hex(HMAC-SHA256(body)), X-Netflix-Timestamp.
type netflixAdapter struct{}

func (netflixAdapter) Name() string { return "netflix" }

func (netflixAdapter) Validate(payload map[string]interface{}) error {
	return requireFields(payload, "event_type", "subscription_id", "user_id")
}

func (netflixAdapter) Verify(body []byte, headers http.Header, secret string) error {
	signature := headers.Get("X-Netflix-Signature")
	if signature == "" {
		return ErrMissingSig
	}
	return verifyHex(signature, sign(secret, body))
}

func (netflixAdapter) Timestamp(payload map[string]interface{}, headers http.Header) (time.Time, bool) {
	if t, ok := parseTime(payload["timestamp"]); ok {
		return t, true
	}
	return parseTime(headers.Get("X-Netflix-Timestamp"))
}

func (a netflixAdapter) Extract(payload map[string]interface{}) ExtractedData {
	eventType := str(payload, "event_type")
	return ExtractedData{
		Provider:       a.Name(),
		EventType:      eventType,
		SubscriptionID: str(payload, "subscription_id"),
		UserID:         str(payload, "user_id"),
		CorrelationID:  firstNonEmpty(str(payload, "correlation_id"), str(obj(payload, "metadata"), "correlation_id")),
		Status:         statusFor(eventType),
		EffectiveDate:  timePtr(payload["effective_date"]),
		Metadata:       obj(payload, "metadata"),
	}
}

// Spotify: {type, data:{subscription_id, user_id, cancelled_at?}}
// X-Spotify-Signature = "sha256=" + hex(HMAC-SHA256(body)), X-Spotify-Timestamp.
type spotifyAdapter struct{}

func (spotifyAdapter) Name() string { return "spotify" }

func (spotifyAdapter) Validate(payload map[string]interface{}) error {
	if err := requireFields(payload, "type"); err != nil {
		return err
	}
	data := obj(payload, "data")
	if data == nil {
		return fmt.Errorf("missing required fields: data")
	}
	return requireFields(data, "subscription_id", "user_id")
}

func (spotifyAdapter) Verify(body []byte, headers http.Header, secret string) error {
	signature := headers.Get("X-Spotify-Signature")
	if signature == "" {
		return ErrMissingSig
	}
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return fmt.Errorf("%w: unsupported scheme", ErrBadSignature)
	}
	return verifyHex(hexSig, sign(secret, body))
}

func (spotifyAdapter) Timestamp(payload map[string]interface{}, headers http.Header) (time.Time, bool) {
	if t, ok := parseTime(payload["timestamp"]); ok {
		return t, true
	}
	return parseTime(headers.Get("X-Spotify-Timestamp"))
}

func (a spotifyAdapter) Extract(payload map[string]interface{}) ExtractedData {
	data := obj(payload, "data")
	eventType := str(payload, "type")
	return ExtractedData{
		Provider:       a.Name(),
		EventType:      eventType,
		SubscriptionID: str(data, "subscription_id"),
		UserID:         str(data, "user_id"),
		CorrelationID:  str(data, "correlation_id"),
		Status:         statusFor(eventType),
		EffectiveDate:  timePtr(data["cancelled_at"]),
		Metadata:       obj(data, "metadata"),
	}
}

// Stripe-like: {id, type, created, data:{object}}
// Stripe-Signature: t=<unix>,v1=<hex HMAC-SHA256(t + "." + body)>
type stripeAdapter struct{}

func (stripeAdapter) Name() string { return "stripe" }

func (stripeAdapter) Validate(payload map[string]interface{}) error {
	if err := requireFields(payload, "id", "type", "created"); err != nil {
		return err
	}
	data := obj(payload, "data")
	if data == nil || obj(data, "object") == nil {
		return fmt.Errorf("missing required fields: data.object")
	}
	return requireFields(obj(data, "object"), "id")
}

func parseStripeHeader(header string) (string, []string) {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	return ts, sigs
}

func (stripeAdapter) Verify(body []byte, headers http.Header, secret string) error {
	header := headers.Get("Stripe-Signature")
	if header == "" {
		return ErrMissingSig
	}
	ts, sigs := parseStripeHeader(header)
	if ts == "" || len(sigs) == 0 {
		return fmt.Errorf("%w: malformed Stripe-Signature", ErrBadSignature)
	}

	expected := sign(secret, []byte(ts), []byte("."), body)
	for _, sig := range sigs {
		if verifyHex(sig, expected) == nil {
			return nil
		}
	}
	return ErrBadSignature
}

func (stripeAdapter) Timestamp(payload map[string]interface{}, headers http.Header) (time.Time, bool) {
	if ts, _ := parseStripeHeader(headers.Get("Stripe-Signature")); ts != "" {
		if t, ok := parseTime(ts); ok {
			return t, true
		}
	}
	return parseTime(payload["created"])
}

func (a stripeAdapter) Extract(payload map[string]interface{}) ExtractedData {
	object := obj(obj(payload, "data"), "object")
	eventType := str(payload, "type")
	metadata := obj(object, "metadata")

	data := ExtractedData{
		Provider:       a.Name(),
		EventType:      eventType,
		SubscriptionID: str(object, "id"),
		CustomerID:     str(object, "customer"),
		UserID:         str(metadata, "user_id"),
		CorrelationID:  str(metadata, "correlation_id"),
		Status:         StatusIgnored,
		Metadata:       map[string]interface{}{"event_id": str(payload, "id")},
	}
	for k, v := range metadata {
		data.Metadata[k] = v
	}

	switch eventType {
	case "customer.subscription.deleted":
		data.Status = StatusCancelled
		data.EffectiveDate = timePtr(firstPresent(object, "ended_at", "canceled_at"))
	case "customer.subscription.updated":
		if cancelAtEnd, _ := object["cancel_at_period_end"].(bool); cancelAtEnd {
			data.Status = StatusCancelled
			data.EffectiveDate = timePtr(firstPresent(object, "cancel_at", "current_period_end"))
		}
	case "customer.subscription.pending_update_applied":
		data.Status = StatusPending
	}
	return data
}

// genericAdapter serves every configured provider without a dedicated schema:
// {event_type|type, subscription_id, user_id?, status?, effective_date?, timestamp?}
// X-Webhook-Signature = [sha256=]hex(HMAC-SHA256(body)), X-Webhook-Timestamp.
type genericAdapter struct {
	name string
}

func (a genericAdapter) Name() string { return a.name }

func (genericAdapter) Validate(payload map[string]interface{}) error {
	if str(payload, "event_type") == "" && str(payload, "type") == "" {
		return fmt.Errorf("missing required fields: event_type")
	}
	return requireFields(payload, "subscription_id")
}

func (genericAdapter) Verify(body []byte, headers http.Header, secret string) error {
	signature := headers.Get("X-Webhook-Signature")
	if signature == "" {
		return ErrMissingSig
	}
	return verifyHex(strings.TrimPrefix(signature, "sha256="), sign(secret, body))
}

func (genericAdapter) Timestamp(payload map[string]interface{}, headers http.Header) (time.Time, bool) {
	if t, ok := parseTime(payload["timestamp"]); ok {
		return t, true
	}
	return parseTime(headers.Get("X-Webhook-Timestamp"))
}

func (a genericAdapter) Extract(payload map[string]interface{}) ExtractedData {
	eventType := firstNonEmpty(str(payload, "event_type"), str(payload, "type"))
	status := statusFor(eventType)
	if explicit := EventStatus(strings.ToLower(str(payload, "status"))); explicit == StatusCancelled || explicit == StatusFailed || explicit == StatusPending {
		status = explicit
	}
	return ExtractedData{
		Provider:       a.name,
		EventType:      eventType,
		SubscriptionID: str(payload, "subscription_id"),
		UserID:         str(payload, "user_id"),
		CustomerID:     str(payload, "customer_id"),
		CorrelationID:  str(payload, "correlation_id"),
		Status:         status,
		EffectiveDate:  timePtr(payload["effective_date"]),
		Metadata:       obj(payload, "metadata"),
	}
}

// statusFor maps common event names onto the normalized status.
func statusFor(eventType string) EventStatus {
	e := strings.ToLower(eventType)
	switch {
	case strings.Contains(e, "fail"), strings.Contains(e, "reject"), strings.Contains(e, "declin"):
		return StatusFailed
	case strings.Contains(e, "cancelled"), strings.Contains(e, "canceled"),
		strings.Contains(e, "cancellation.completed"), strings.Contains(e, "cancellation.confirmed"),
		strings.HasSuffix(e, ".deleted"), strings.HasSuffix(e, ".ended"):
		return StatusCancelled
	case strings.Contains(e, "pending"), strings.Contains(e, "requested"):
		return StatusPending
	}
	return StatusIgnored
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPresent(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
