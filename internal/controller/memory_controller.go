package controller

import (
	"daw-agent-be/internal/dto"
	"daw-agent-be/internal/pkg/serverutils"
	"daw-agent-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IMemoryController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	StartSession(ctx *fiber.Ctx) error
	EndSession(ctx *fiber.Ctx) error
	Search(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
}

type memoryController struct {
	service service.IMemoryService
}

func NewMemoryController(service service.IMemoryService) IMemoryController {
	return &memoryController{service: service}
}

func (c *memoryController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/memory/v1")
	h.Use(auth)
	h.Post("sessions", c.StartSession)
	h.Delete("sessions/current", c.EndSession)
	h.Get("search", c.Search)
	h.Get("stats", c.Stats)
}

func (c *memoryController) StartSession(ctx *fiber.Ctx) error {
	var req dto.StartSessionRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session started", c.service.StartSession(&req)))
}

func (c *memoryController) EndSession(ctx *fiber.Ctx) error {
	res, err := c.service.EndSession(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session ended", res))
}

func (c *memoryController) Search(ctx *fiber.Ctx) error {
	var q dto.MemorySearchQuery
	if err := ctx.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid query")
	}
	if err := serverutils.ValidateRequest(q); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Relevant memories", c.service.Search(&q)))
}

func (c *memoryController) Stats(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Agent stats", c.service.Stats()))
}
