package controller

import (
	"net/http"

	"cancelflow-be/internal/pkg/serverutils"
	"cancelflow-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IWebhookController interface {
	RegisterRoutes(r fiber.Router)
	Receive(ctx *fiber.Ctx) error
	Validate(ctx *fiber.Ctx) error
}

type webhookController struct {
	service service.IWebhookService
}

func NewWebhookController(service service.IWebhookService) IWebhookController {
	return &webhookController{service: service}
}

// RegisterRoutes mounts the provider callbacks. They are authenticated by signature, not JWT.
func (c *webhookController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/webhooks")
	h.Post(":provider", c.Receive)
	h.Post(":provider/validate", c.Validate)
}

func (c *webhookController) Receive(ctx *fiber.Ctx) error {
	headers := make(http.Header)
	for key, values := range ctx.GetReqHeaders() {
		for _, v := range values {
			headers.Add(key, v)
		}
	}
	// Body() is only valid for the handler's lifetime
	body := append([]byte(nil), ctx.Body()...)

	status, ack, reason := c.service.Receive(ctx.UserContext(), ctx.Params("provider"), body, headers)
	if ack == nil {
		return ctx.Status(status).JSON(serverutils.ErrorResponse(status, reason))
	}
	return ctx.Status(status).JSON(serverutils.SuccessResponse("Webhook received", ack))
}

func (c *webhookController) Validate(ctx *fiber.Ctx) error {
	var payload map[string]interface{}
	if err := ctx.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}

	res := c.service.DryRun(ctx.Params("provider"), payload)
	status := fiber.StatusOK
	if !res.Valid {
		status = fiber.StatusUnprocessableEntity
	}
	return ctx.Status(status).JSON(serverutils.BaseResponse[any]{
		Success: res.Valid,
		Code:    status,
		Message: "Webhook validation",
		Data:    res,
	})
}
