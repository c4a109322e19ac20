package controller

import (
	"daw-agent-be/internal/dto"
	"daw-agent-be/internal/pkg/serverutils"
	"daw-agent-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IProjectController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Show(ctx *fiber.Ctx) error
	Replace(ctx *fiber.Ctx) error
}

type projectController struct {
	service service.IProjectService
}

func NewProjectController(service service.IProjectService) IProjectController {
	return &projectController{service: service}
}

func (c *projectController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/project/v1")
	h.Use(auth)
	h.Get("state", c.Show)
	h.Put("state", c.Replace)
}

func (c *projectController) Show(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Project state", c.service.State()))
}

func (c *projectController) Replace(ctx *fiber.Ctx) error {
	var req dto.ProjectStateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Project state replaced", c.service.Replace(&req)))
}
