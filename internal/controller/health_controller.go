package controller

import (
	"context"
	"time"

	"cancelflow-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
}

type healthController struct {
	checks map[string]Pinger
}

func NewHealthController(checks map[string]Pinger) IHealthController {
	return &healthController{checks: checks}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Health)
}

func (c *healthController) Health(ctx *fiber.Ctx) error {
	checkCtx, cancel := context.WithTimeout(ctx.UserContext(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(c.checks))
	healthy := true
	for name, ping := range c.checks {
		if err := ping(checkCtx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	if !healthy {
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(serverutils.BaseResponse[map[string]string]{
			Code:    fiber.StatusServiceUnavailable,
			Message: "Degraded",
			Data:    results,
		})
	}
	return ctx.JSON(serverutils.SuccessResponse("OK", results))
}
