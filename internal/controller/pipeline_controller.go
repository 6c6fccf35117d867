package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"clinical-dss-be/internal/dto"
	"clinical-dss-be/internal/pkg/apperr"
	"clinical-dss-be/internal/pkg/serverutils"
	"clinical-dss-be/internal/service"
)

type IPipelineController interface {
	RegisterRoutes(r fiber.Router)
	ShowRun(ctx *fiber.Ctx) error
}

type pipelineController struct {
	pipelineService service.IPipelineService
}

func NewPipelineController(pipelineService service.IPipelineService) IPipelineController {
	return &pipelineController{
		pipelineService: pipelineService,
	}
}

func (c *pipelineController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/pipeline/v1")
	h.Get("/runs/:id", c.ShowRun)
}

// ShowRun returns the current run snapshot. Clients call this after a
// resync event instead of replaying buffered progress.
func (c *pipelineController) ShowRun(ctx *fiber.Ctx) error {
	runId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return apperr.New(apperr.KindValidation, "invalid run id")
	}

	snap, err := c.pipelineService.Snapshot(runId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("run snapshot", dto.RunSnapshotResponse{
		Id:           snap.Id,
		Status:       snap.Status,
		CurrentStage: snap.CurrentStage,
		Seq:          snap.Seq,
		History:      snap.History,
	}))
}
