package dto

type WebhookAckResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

// WebhookValidationResponse answers the dry-run endpoint. Valid is false on any failure.
type WebhookValidationResponse struct {
	Valid      bool                   `json:"valid"`
	Error      string                 `json:"error,omitempty"`
	Normalized map[string]interface{} `json:"normalized,omitempty"`
}
