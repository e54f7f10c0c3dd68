package controller

import (
	"errors"

	"cancelflow-be/internal/service"
	"cancelflow-be/pkg/cancellation"
	"cancelflow-be/pkg/queue"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// toHTTPError maps domain errors to fiber errors; anything unknown passes through
// to the error middleware as a 500.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrSubscriptionNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Subscription not found")
	case errors.Is(err, service.ErrCancellationNotFound),
		errors.Is(err, cancellation.ErrRequestNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Cancellation request not found")
	case errors.Is(err, cancellation.ErrActiveRequestExists):
		return fiber.NewError(fiber.StatusConflict, "A cancellation for this subscription is already in progress")
	case errors.Is(err, cancellation.ErrNotConfirmable):
		return fiber.NewError(fiber.StatusConflict, "This cancellation is not waiting for your confirmation")
	case errors.Is(err, cancellation.ErrNotRetryable):
		return fiber.NewError(fiber.StatusConflict, "Only failed cancellations can be retried")
	case errors.Is(err, cancellation.ErrBusy):
		return fiber.NewError(fiber.StatusConflict, "This cancellation is being processed, try again shortly")
	case errors.Is(err, queue.ErrJobNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Job not found")
	}
	return err
}

// pathID reads a UUID path parameter.
func pathID(ctx *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params(param))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+param)
	}
	return id, nil
}
