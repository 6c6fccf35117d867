package controller

import (
	"github.com/gofiber/fiber/v2"

	"clinical-dss-be/internal/pkg/serverutils"
	"clinical-dss-be/internal/service"
)

type IHealthController interface {
	RegisterRoutes(app *fiber.App)
	Root(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
}

type healthController struct {
	healthService service.IHealthService
}

func NewHealthController(healthService service.IHealthService) IHealthController {
	return &healthController{
		healthService: healthService,
	}
}

func (c *healthController) RegisterRoutes(app *fiber.App) {
	app.Get("/", c.Root)
	app.Get("/health", c.Health)
	app.Get("/status", c.Status)
}

func (c *healthController) Root(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("clinical decision support backend", nil))
}

// Health is the liveness probe: the process is up.
func (c *healthController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"status": "ok"})
}

// Status reports per-dependency health used to gate admission.
func (c *healthController) Status(ctx *fiber.Ctx) error {
	report := c.healthService.Check(ctx.Context())

	code := fiber.StatusOK
	if report.Status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return ctx.Status(code).JSON(report)
}
