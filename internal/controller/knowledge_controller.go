package controller

import (
	"daw-agent-be/internal/dto"
	"daw-agent-be/internal/pkg/serverutils"
	"daw-agent-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IKnowledgeController interface {
	RegisterRoutes(r fiber.Router)
	Search(ctx *fiber.Ctx) error
}

type knowledgeController struct {
	service service.IKnowledgeService
}

func NewKnowledgeController(service service.IKnowledgeService) IKnowledgeController {
	return &knowledgeController{service: service}
}

// The catalogue is public reference material; no auth.
func (c *knowledgeController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/knowledge/v1")
	h.Get("search", c.Search)
}

func (c *knowledgeController) Search(ctx *fiber.Ctx) error {
	var q dto.KnowledgeSearchQuery
	if err := ctx.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid query")
	}
	if err := serverutils.ValidateRequest(q); err != nil {
		return err
	}

	res, err := c.service.Search(ctx.UserContext(), &q)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Knowledge search", res))
}
