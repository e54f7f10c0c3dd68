package controller

import (
	"cancelflow-be/internal/pkg/serverutils"
	"cancelflow-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAdminController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
}

type adminController struct {
	service service.IAdminService
}

func NewAdminController(service service.IAdminService) IAdminController {
	return &adminController{service: service}
}

func (c *adminController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/admin")
	h.Use(auth, serverutils.AdminOnly)

	h.Get("/jobs/stats", c.JobStats)
	h.Get("/jobs/failed", c.FailedJobs)
	h.Post("/jobs/:id/retry", c.RetryJob)

	h.Get("/cancellations/stats", c.CancellationStats)
	h.Post("/cancellations/:id/retry", c.RetryCancellation)
	h.Get("/cancellations/:id/logs", c.CancellationLogs)

	h.Get("/providers", c.Providers)
}

func (c *adminController) JobStats(ctx *fiber.Ctx) error {
	stats, err := c.service.GetJobStats(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Job stats", stats))
}

func (c *adminController) FailedJobs(ctx *fiber.Ctx) error {
	jobs, err := c.service.GetFailedJobs(ctx.UserContext(), ctx.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Failed jobs", jobs))
}

func (c *adminController) RetryJob(ctx *fiber.Ctx) error {
	res, err := c.service.RetryJob(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	if !res.Requeued {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, "No failed job with this id"))
	}
	return ctx.JSON(serverutils.SuccessResponse("Job requeued", res))
}

func (c *adminController) CancellationStats(ctx *fiber.Ctx) error {
	stats, err := c.service.GetCancellationStats(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Cancellation stats", stats))
}

func (c *adminController) RetryCancellation(ctx *fiber.Ctx) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	res, err := c.service.RetryCancellation(ctx.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Cancellation retry accepted", res))
}

func (c *adminController) CancellationLogs(ctx *fiber.Ctx) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	logs, err := c.service.GetCancellationLogs(ctx.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Cancellation logs", logs))
}

func (c *adminController) Providers(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Providers", c.service.GetProviders(ctx.UserContext())))
}
