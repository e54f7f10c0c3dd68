package dto

import "time"

type JobStatsResponse struct {
	Pending   int64 `json:"pending"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	// Process-local counters since start.
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Retried   int64 `json:"retried"`
	InFlight  int64 `json:"in_flight"`
}

type FailedJobResponse struct {
	Id          string    `json:"id"`
	Type        string    `json:"type"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RetryJobResponse struct {
	Id       string `json:"id"`
	Requeued bool   `json:"requeued"`
}

type CancellationStatsResponse struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

type ProviderResponse struct {
	Id              string `json:"id"`
	Name            string `json:"name"`
	NormalizedName  string `json:"normalized_name"`
	Type            string `json:"type"`
	SupportsRefunds bool   `json:"supports_refunds"`
}

// AdminCancellationLogResponse is the unfiltered trail entry, metadata included.
type AdminCancellationLogResponse struct {
	CancellationLogResponse
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
