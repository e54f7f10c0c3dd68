package contract

import (
	"context"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/repository/specification"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *entity.Subscription) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error)
	Update(ctx context.Context, subscription *entity.Subscription) error
}

type ProviderRepository interface {
	Create(ctx context.Context, provider *entity.Provider) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Provider, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Provider, error)
	Update(ctx context.Context, provider *entity.Provider) error
}

// AuditLogRepository is the append-only audit sink.
type AuditLogRepository interface {
	Create(ctx context.Context, log *entity.AuditLog) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.AuditLog, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
