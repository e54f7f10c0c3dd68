package unitofwork

import (
	"context"

	"cancelflow-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	CancellationRequestRepository() contract.CancellationRequestRepository
	CancellationLogRepository() contract.CancellationLogRepository
	SubscriptionRepository() contract.SubscriptionRepository
	ProviderRepository() contract.ProviderRepository
	AuditLogRepository() contract.AuditLogRepository
}
