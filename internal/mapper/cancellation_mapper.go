package mapper

import (
	"encoding/json"

	"cancelflow-be/internal/entity"
	"cancelflow-be/internal/model"

	"gorm.io/datatypes"
)

type CancellationMapper struct{}

func NewCancellationMapper() *CancellationMapper {
	return &CancellationMapper{}
}

func (m *CancellationMapper) RequestToEntity(r *model.CancellationRequest) *entity.CancellationRequest {
	if r == nil {
		return nil
	}
	e := &entity.CancellationRequest{
		ID:               r.ID,
		SubscriptionID:   r.SubscriptionID,
		UserID:           r.UserID,
		Method:           entity.CancellationMethod(r.Method),
		Status:           entity.CancellationStatus(r.Status),
		Reason:           r.Reason,
		ContactEmail:     r.ContactEmail,
		Attempts:         r.Attempts,
		MaxAttempts:      r.MaxAttempts,
		ConfirmationCode: r.ConfirmationCode,
		EffectiveDate:    r.EffectiveDate,
		RefundAmount:     r.RefundAmount,
		ErrorCode:        r.ErrorCode,
		ErrorMessage:     r.ErrorMessage,
		WebhookID:        r.WebhookID,
		WebhookExpiresAt: r.WebhookExpiresAt,
		Awaiting:         entity.AwaitingState(r.Awaiting),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		CompletedAt:      r.CompletedAt,
	}
	if len(r.ErrorDetails) > 0 {
		_ = json.Unmarshal(r.ErrorDetails, &e.ErrorDetails)
	}
	if len(r.ManualInstructions) > 0 && string(r.ManualInstructions) != "null" {
		var set entity.ManualInstructionSet
		if err := json.Unmarshal(r.ManualInstructions, &set); err == nil {
			e.ManualInstructions = &set
		}
	}
	return e
}

func (m *CancellationMapper) RequestToModel(e *entity.CancellationRequest) *model.CancellationRequest {
	if e == nil {
		return nil
	}
	return &model.CancellationRequest{
		ID:                 e.ID,
		SubscriptionID:     e.SubscriptionID,
		UserID:             e.UserID,
		Method:             string(e.Method),
		Status:             string(e.Status),
		Reason:             e.Reason,
		ContactEmail:       e.ContactEmail,
		Attempts:           e.Attempts,
		MaxAttempts:        e.MaxAttempts,
		ConfirmationCode:   e.ConfirmationCode,
		EffectiveDate:      e.EffectiveDate,
		RefundAmount:       e.RefundAmount,
		ErrorCode:          e.ErrorCode,
		ErrorMessage:       e.ErrorMessage,
		ErrorDetails:       toJSON(e.ErrorDetails),
		ManualInstructions: toJSON(e.ManualInstructions),
		WebhookID:          e.WebhookID,
		WebhookExpiresAt:   e.WebhookExpiresAt,
		Awaiting:           string(e.Awaiting),
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
		CompletedAt:        e.CompletedAt,
	}
}

func (m *CancellationMapper) LogToEntity(l *model.CancellationLog) *entity.CancellationLog {
	if l == nil {
		return nil
	}
	return &entity.CancellationLog{
		ID:        l.ID,
		RequestID: l.RequestID,
		Sequence:  l.Sequence,
		Action:    l.Action,
		Status:    entity.LogStatus(l.Status),
		Message:   l.Message,
		Metadata:  l.Metadata,
		CreatedAt: l.CreatedAt,
	}
}

func (m *CancellationMapper) LogToModel(l *entity.CancellationLog) *model.CancellationLog {
	if l == nil {
		return nil
	}
	return &model.CancellationLog{
		ID:        l.ID,
		RequestID: l.RequestID,
		Sequence:  l.Sequence,
		Action:    l.Action,
		Status:    string(l.Status),
		Message:   l.Message,
		Metadata:  datatypes.JSONMap(l.Metadata),
		CreatedAt: l.CreatedAt,
	}
}

func toJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return nil
	}
	return datatypes.JSON(data)
}
