package service

import (
	"context"
	"errors"

	"cancelflow-be/internal/dto"
	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/pkg/logger"
	"cancelflow-be/internal/repository/specification"
	"cancelflow-be/internal/repository/unitofwork"
	"cancelflow-be/pkg/cancellation"

	"github.com/google/uuid"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrCancellationNotFound = errors.New("cancellation request not found")
)

// CancellationEngine is the part of the workflow engine the service drives.
type CancellationEngine interface {
	Submit(ctx context.Context, in cancellation.SubmitInput) (*entity.CancellationRequest, error)
	ConfirmByUser(ctx context.Context, requestID, userID uuid.UUID, in cancellation.Confirmation) (*cancellation.Ack, error)
	Retry(ctx context.Context, requestID, userID uuid.UUID) (*entity.CancellationRequest, error)
}

type ICancellationService interface {
	EnqueueCancellation(ctx context.Context, userId uuid.UUID, email string, req *dto.CreateCancellationRequest) (*dto.CreateCancellationResponse, error)
	GetCancellationStatus(ctx context.Context, userId, requestId uuid.UUID) (*dto.CancellationStatusResponse, error)
	ConfirmCancellation(ctx context.Context, userId, requestId uuid.UUID, req *dto.ConfirmCancellationRequest) (*dto.ConfirmCancellationResponse, error)
	RetryCancellation(ctx context.Context, userId, requestId uuid.UUID) (*dto.CreateCancellationResponse, error)
	GetCancellationLogs(ctx context.Context, userId, requestId uuid.UUID) ([]*dto.CancellationLogResponse, error)
}

type cancellationService struct {
	uowFactory unitofwork.RepositoryFactory
	engine     CancellationEngine
	logger     logger.ILogger
}

func NewCancellationService(uowFactory unitofwork.RepositoryFactory, engine CancellationEngine, log logger.ILogger) ICancellationService {
	return &cancellationService{
		uowFactory: uowFactory,
		engine:     engine,
		logger:     log,
	}
}

func (s *cancellationService) EnqueueCancellation(ctx context.Context, userId uuid.UUID, email string, req *dto.CreateCancellationRequest) (*dto.CreateCancellationResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sub, err := uow.SubscriptionRepository().FindOne(ctx,
		specification.ByID{ID: req.SubscriptionId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}

	created, err := s.engine.Submit(ctx, cancellation.SubmitInput{
		SubscriptionID: sub.ID,
		UserID:         userId,
		Method:         entity.CancellationMethod(req.Method),
		MaxAttempts:    req.MaxAttempts,
		Reason:         req.Reason,
		ContactEmail:   email,
	})
	if err != nil {
		if created == nil {
			return nil, err
		}
		// Stored but not queued; the request stays pending and can be retried later.
		s.logger.Error("CANCELLATION", "Request stored but validation was not queued", map[string]interface{}{
			"request_id": created.ID.String(),
			"error":      err.Error(),
		})
	}

	s.logger.Info("CANCELLATION", "Cancellation requested", map[string]interface{}{
		"request_id":      created.ID.String(),
		"subscription_id": sub.ID.String(),
		"user_id":         userId.String(),
	})

	return &dto.CreateCancellationResponse{
		RequestId: created.ID,
		Status:    string(created.Status),
		Message:   "Cancellation request accepted",
	}, nil
}

func (s *cancellationService) GetCancellationStatus(ctx context.Context, userId, requestId uuid.UUID) (*dto.CancellationStatusResponse, error) {
	req, err := s.owned(ctx, userId, requestId)
	if err != nil {
		return nil, err
	}

	view := cancellation.Describe(req)
	return &dto.CancellationStatusResponse{
		RequestId:        view.RequestID,
		Status:           string(view.Status),
		State:            string(view.State),
		Message:          view.Message,
		Method:           string(view.Method),
		Attempts:         view.Attempts,
		MaxAttempts:      view.MaxAttempts,
		ConfirmationCode: view.ConfirmationCode,
		EffectiveDate:    view.EffectiveDate,
		RefundAmount:     view.RefundAmount,
		Instructions:     view.Instructions,
		WaitingUntil:     view.WaitingUntil,
		CreatedAt:        view.CreatedAt,
		UpdatedAt:        view.UpdatedAt,
		CompletedAt:      view.CompletedAt,
	}, nil
}

func (s *cancellationService) ConfirmCancellation(ctx context.Context, userId, requestId uuid.UUID, req *dto.ConfirmCancellationRequest) (*dto.ConfirmCancellationResponse, error) {
	ack, err := s.engine.ConfirmByUser(ctx, requestId, userId, cancellation.Confirmation{
		WasSuccessful:    req.WasSuccessful != nil && *req.WasSuccessful,
		ConfirmationCode: req.ConfirmationCode,
		EffectiveDate:    req.EffectiveDate,
	})
	if err != nil {
		return nil, ownershipHidden(err)
	}

	return &dto.ConfirmCancellationResponse{
		RequestId: ack.RequestID,
		Status:    string(ack.Status),
		Updated:   ack.Changed,
		Message:   ack.Message,
	}, nil
}

func (s *cancellationService) RetryCancellation(ctx context.Context, userId, requestId uuid.UUID) (*dto.CreateCancellationResponse, error) {
	req, err := s.engine.Retry(ctx, requestId, userId)
	if err != nil && req == nil {
		return nil, ownershipHidden(err)
	}
	if err != nil {
		s.logger.Error("CANCELLATION", "Retry stored but validation was not queued", map[string]interface{}{
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

func (s *cancellationService) GetCancellationLogs(ctx context.Context, userId, requestId uuid.UUID) ([]*dto.CancellationLogResponse, error) {
	if _, err := s.owned(ctx, userId, requestId); err != nil {
		return nil, err
	}

	logs, err := s.uowFactory.NewUnitOfWork(ctx).CancellationLogRepository().FindByRequest(ctx, specification.ByRequestID{RequestID: requestId})
	if err != nil {
		return nil, err
	}

	res := make([]*dto.CancellationLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, toLogResponse(l))
	}
	return res, nil
}

// owned loads a request the caller owns. Someone else's request looks missing.
func (s *cancellationService) owned(ctx context.Context, userId, requestId uuid.UUID) (*entity.CancellationRequest, error) {
	req, err := s.uowFactory.NewUnitOfWork(ctx).CancellationRequestRepository().FindOne(ctx,
		specification.ByID{ID: requestId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrCancellationNotFound
	}
	return req, nil
}

func ownershipHidden(err error) error {
	if errors.Is(err, cancellation.ErrNotOwner) || errors.Is(err, cancellation.ErrRequestNotFound) {
		return ErrCancellationNotFound
	}
	return err
}

func toLogResponse(l *entity.CancellationLog) *dto.CancellationLogResponse {
	return &dto.CancellationLogResponse{
		Sequence:  l.Sequence,
		Action:    l.Action,
		Status:    string(l.Status),
		Message:   l.Message,
		CreatedAt: l.CreatedAt,
	}
}
