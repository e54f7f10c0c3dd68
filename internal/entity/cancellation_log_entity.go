package entity

import (
	"time"

	"github.com/google/uuid"
)

type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusFailure LogStatus = "failure"
	LogStatusInfo    LogStatus = "info"
)

// CancellationLog is append-only. Sequence is strictly increasing per request.
type CancellationLog struct {
	ID        uuid.UUID
	RequestID uuid.UUID
	Sequence  int64
	Action    string
	Status    LogStatus
	Message   string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}
