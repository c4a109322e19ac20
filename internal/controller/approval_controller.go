package controller

import (
	"daw-agent-be/internal/pkg/serverutils"
	"daw-agent-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IApprovalController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Pending(ctx *fiber.Ctx) error
	Approve(ctx *fiber.Ctx) error
	Reject(ctx *fiber.Ctx) error
}

type approvalController struct {
	service service.IApprovalService
}

func NewApprovalController(service service.IApprovalService) IApprovalController {
	return &approvalController{service: service}
}

func (c *approvalController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/approval/v1")
	h.Use(auth)
	h.Get("pending", c.Pending)
	h.Post("approve", c.Approve)
	h.Post("reject", c.Reject)
}

func (c *approvalController) Pending(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Pending changes", c.service.Pending()))
}

func (c *approvalController) Approve(ctx *fiber.Ctx) error {
	res := c.service.ApproveAll(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse("All changes approved", res))
}

func (c *approvalController) Reject(ctx *fiber.Ctx) error {
	res := c.service.RejectAll(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse("All changes rejected", res))
}
