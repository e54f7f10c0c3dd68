package controller

import (
	"cancelflow-be/internal/dto"
	"cancelflow-be/internal/pkg/serverutils"
	"cancelflow-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ICancellationController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Confirm(ctx *fiber.Ctx) error
	Retry(ctx *fiber.Ctx) error
	Logs(ctx *fiber.Ctx) error
}

type cancellationController struct {
	service service.ICancellationService
}

func NewCancellationController(service service.ICancellationService) ICancellationController {
	return &cancellationController{service: service}
}

func (c *cancellationController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/cancellations")
	h.Use(auth)
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Post(":id/confirm", c.Confirm)
	h.Post(":id/retry", c.Retry)
	h.Get(":id/logs", c.Logs)
}

func (c *cancellationController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateCancellationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.EnqueueCancellation(ctx.UserContext(), serverutils.UserID(ctx), serverutils.UserEmail(ctx), &req)
	if err != nil {
		return toHTTPError(err)
	}

	resp := serverutils.SuccessResponse("Cancellation request accepted", res)
	resp.Code = fiber.StatusAccepted
	return ctx.Status(fiber.StatusAccepted).JSON(resp)
}

func (c *cancellationController) Show(ctx *fiber.Ctx) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.GetCancellationStatus(ctx.UserContext(), serverutils.UserID(ctx), id)
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Cancellation status", res))
}

func (c *cancellationController) Confirm(ctx *fiber.Ctx) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	var req dto.ConfirmCancellationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.ConfirmCancellation(ctx.UserContext(), serverutils.UserID(ctx), id, &req)
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse(res.Message, res))
}

func (c *cancellationController) Retry(ctx *fiber.Ctx) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.RetryCancellation(ctx.UserContext(), serverutils.UserID(ctx), id)
	if err != nil {
		return toHTTPError(err)
	}
	resp := serverutils.SuccessResponse("Cancellation retry accepted", res)
	resp.Code = fiber.StatusAccepted
	return ctx.Status(fiber.StatusAccepted).JSON(resp)
}

func (c *cancellationController) Logs(ctx *fiber.Ctx) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}

	res, err := c.service.GetCancellationLogs(ctx.UserContext(), serverutils.UserID(ctx), id)
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Cancellation logs", res))
}
