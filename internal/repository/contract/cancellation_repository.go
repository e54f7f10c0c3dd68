package contract

import (
	"context"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/repository/specification"
)

// CancellationRequestRepository defines operations for cancellation requests.
// Requests are never deleted.
type CancellationRequestRepository interface {
	Create(ctx context.Context, request *entity.CancellationRequest) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CancellationRequest, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.CancellationRequest, error)
	// UpdateIfStatus writes request only if the stored status still equals expected.
	// It returns false when another writer got there first.
	UpdateIfStatus(ctx context.Context, request *entity.CancellationRequest, expected entity.CancellationStatus) (bool, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	CountByStatus(ctx context.Context, specs ...specification.Specification) (map[entity.CancellationStatus]int64, error)
}

// CancellationLogRepository is append-only.
type CancellationLogRepository interface {
	// Append assigns the next per-request sequence number and stores the entry.
	Append(ctx context.Context, log *entity.CancellationLog) error
	FindByRequest(ctx context.Context, specs ...specification.Specification) ([]*entity.CancellationLog, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
