package service

import (
	"context"

	"cancelflow-be/internal/dto"
	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/internal/repository/specification"
	"cancelflow-be/internal/repository/unitofwork"
	"cancelflow-be/pkg/queue"

	"github.com/google/uuid"
)

// JobAdmin is the operator view of the queue. *queue.Queue satisfies it.
type JobAdmin interface {
	Stats(ctx context.Context) (queue.Stats, error)
	Counters() queue.Counters
	FailedJobs(ctx context.Context, limit int) ([]*queue.Job, error)
	RetryFailedJob(ctx context.Context, id string) (bool, error)
}

// ProviderCatalog lists the loaded providers. *provider.Registry satisfies it.
type ProviderCatalog interface {
	All() []*entity.Provider
}

type IAdminService interface {
	GetJobStats(ctx context.Context) (*dto.JobStatsResponse, error)
	GetFailedJobs(ctx context.Context, limit int) ([]*dto.FailedJobResponse, error)
	RetryJob(ctx context.Context, jobId string) (*dto.RetryJobResponse, error)
	GetCancellationStats(ctx context.Context) (*dto.CancellationStatsResponse, error)
	RetryCancellation(ctx context.Context, requestId uuid.UUID) (*dto.CreateCancellationResponse, error)
	GetCancellationLogs(ctx context.Context, requestId uuid.UUID) ([]*dto.AdminCancellationLogResponse, error)
	GetProviders(ctx context.Context) []*dto.ProviderResponse
}

type adminService struct {
	uowFactory unitofwork.RepositoryFactory
	jobs       JobAdmin
	engine     CancellationEngine
	providers  ProviderCatalog
	logger     logger.ILogger
}

func NewAdminService(uowFactory unitofwork.RepositoryFactory, jobs JobAdmin, engine CancellationEngine, providers ProviderCatalog, log logger.ILogger) IAdminService {
	return &adminService{
		uowFactory: uowFactory,
		jobs:       jobs,
		engine:     engine,
		providers:  providers,
		logger:     log,
	}
}

func (s *adminService) GetJobStats(ctx context.Context) (*dto.JobStatsResponse, error) {
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	counters := s.jobs.Counters()

	return &dto.JobStatsResponse{
		Pending:   stats.Pending,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Processed: counters.Processed,
		Succeeded: counters.Succeeded,
		Retried:   counters.Retried,
		InFlight:  counters.InFlight,
	}, nil
}

func (s *adminService) GetFailedJobs(ctx context.Context, limit int) ([]*dto.FailedJobResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	jobs, err := s.jobs.FailedJobs(ctx, limit)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.FailedJobResponse, 0, len(jobs))
	for _, j := range jobs {
		res = append(res, &dto.FailedJobResponse{
			Id:          j.ID,
			Type:        j.Type,
			Attempts:    j.Attempts,
			MaxAttempts: j.MaxAttempts,
			LastError:   j.LastError,
			CreatedAt:   j.CreatedAt,
			UpdatedAt:   j.UpdatedAt,
		})
	}
	return res, nil
}

func (s *adminService) RetryJob(ctx context.Context, jobId string) (*dto.RetryJobResponse, error) {
	requeued, err := s.jobs.RetryFailedJob(ctx, jobId)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ADMIN", "Failed job requeued", map[string]interface{}{
		"job_id":   jobId,
		"requeued": requeued,
	})
	return &dto.RetryJobResponse{Id: jobId, Requeued: requeued}, nil
}

func (s *adminService) GetCancellationStats(ctx context.Context) (*dto.CancellationStatsResponse, error) {
	counts, err := s.uowFactory.NewUnitOfWork(ctx).CancellationRequestRepository().CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	res := &dto.CancellationStatsResponse{ByStatus: make(map[string]int64, 4)}
	for _, status := range []entity.CancellationStatus{
		entity.CancellationStatusPending,
		entity.CancellationStatusProcessing,
		entity.CancellationStatusCompleted,
		entity.CancellationStatusFailed,
	} {
		res.ByStatus[string(status)] = counts[status]
		res.Total += counts[status]
	}
	return res, nil
}

func (s *adminService) RetryCancellation(ctx context.Context, requestId uuid.UUID) (*dto.CreateCancellationResponse, error) {
	req, err := s.engine.Retry(ctx, requestId, uuid.Nil)
	if err != nil && req == nil {
		return nil, ownershipHidden(err)
	}
	if err != nil {
		s.logger.Error("ADMIN", "Retry stored but validation was not queued", map[string]interface{}{
			"request_id": requestId.String(),
			"error":      err.Error(),
		})
	}
	return &dto.CreateCancellationResponse{
		RequestId: req.ID,
		Status:    string(req.Status),
		Message:   "Cancellation retry accepted",
	}, nil
}

func (s *adminService) GetCancellationLogs(ctx context.Context, requestId uuid.UUID) ([]*dto.AdminCancellationLogResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	req, err := uow.CancellationRequestRepository().FindOne(ctx, specification.ByID{ID: requestId})
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrCancellationNotFound
	}

	logs, err := uow.CancellationLogRepository().FindByRequest(ctx, specification.ByRequestID{RequestID: requestId})
	if err != nil {
		return nil, err
	}
	res := make([]*dto.AdminCancellationLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, &dto.AdminCancellationLogResponse{
			CancellationLogResponse: *toLogResponse(l),
			Metadata:                l.Metadata,
		})
	}
	return res, nil
}

func (s *adminService) GetProviders(ctx context.Context) []*dto.ProviderResponse {
	all := s.providers.All()
	res := make([]*dto.ProviderResponse, 0, len(all))
	for _, p := range all {
		res = append(res, &dto.ProviderResponse{
			Id:              p.ID.String(),
			Name:            p.Name,
			NormalizedName:  p.NormalizedName,
			Type:            string(p.Type),
			SupportsRefunds: p.SupportsRefunds,
		})
	}
	return res
}
