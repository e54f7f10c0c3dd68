package service

import (
	"context"
	"net/http"

	"cancelflow-be/internal/dto"
	"cancelflow-be/pkg/webhook"
)

// WebhookIngestor is satisfied by *webhook.Processor.
type WebhookIngestor interface {
	Ingest(ctx context.Context, provider string, body []byte, headers http.Header) webhook.Outcome
	Validate(provider string, payload map[string]interface{}) webhook.ValidationResult
}

type IWebhookService interface {
	// Receive returns the HTTP status to answer the provider with.
	Receive(ctx context.Context, provider string, body []byte, headers http.Header) (int, *dto.WebhookAckResponse, string)
	DryRun(provider string, payload map[string]interface{}) *dto.WebhookValidationResponse
}

type webhookService struct {
	ingestor WebhookIngestor
}

func NewWebhookService(ingestor WebhookIngestor) IWebhookService {
	return &webhookService{ingestor: ingestor}
}

func (s *webhookService) Receive(ctx context.Context, provider string, body []byte, headers http.Header) (int, *dto.WebhookAckResponse, string) {
	out := s.ingestor.Ingest(ctx, provider, body, headers)
	if !out.Accepted {
		return out.Status, nil, out.Error
	}

	ack := &dto.WebhookAckResponse{Received: true, Duplicate: out.Duplicate}
	if out.Event != nil {
		ack.EventType = out.Event.EventType
	}
	return out.Status, ack, ""
}

// DryRun checks a payload against the provider schema without verifying or recording it.
func (s *webhookService) DryRun(provider string, payload map[string]interface{}) *dto.WebhookValidationResponse {
	v := s.ingestor.Validate(provider, payload)
	res := &dto.WebhookValidationResponse{Valid: v.Valid, Error: v.Error}
	if v.Normalized != nil {
		res.Normalized = v.Normalized.ToMap()
	}
	return res
}
