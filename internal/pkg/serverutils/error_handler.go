package serverutils

import (
	"errors"

	"cancelflow-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the JSON envelope.
// Handlers that already wrote a response return nil and are left alone.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, log, err)
	}
}

// WriteError answers with the status that matches err.
func WriteError(ctx *fiber.Ctx, log logger.ILogger, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return ctx.Status(fiber.StatusBadRequest).JSON(ValidationErrorResponse(verr.Fields))
	}

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ctx.Status(ferr.Code).JSON(ErrorResponse(ferr.Code, ferr.Message))
	}

	if log != nil {
		log.Error("HTTP", "Unhandled request error", map[string]interface{}{
			"method": ctx.Method(),
			"path":   ctx.Path(),
			"error":  err.Error(),
		})
	}
	return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, "Internal server error"))
}
