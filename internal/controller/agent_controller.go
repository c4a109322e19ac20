package controller

import (
	"bufio"
	"context"
	"encoding/json"

	"daw-agent-be/internal/dto"
	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/internal/pkg/serverutils"
	"daw-agent-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

const httpModule = "HTTP"

type IAgentController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Stream(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
}

type agentController struct {
	service service.IAgentService
	logger  logger.ILogger
}

func NewAgentController(service service.IAgentService, log logger.ILogger) IAgentController {
	return &agentController{service: service, logger: log}
}

func (c *agentController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/agent/v1")
	h.Use(auth)
	h.Post("stream", c.Stream)
	h.Post("cancel", c.Cancel)
	h.Get("status", c.Status)
}

// Stream runs the pipeline and answers with a text/event-stream of chunk
// frames, one result frame and a final [DONE] line.
func (c *agentController) Stream(ctx *fiber.Ctx) error {
	var req dto.StreamAgentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}
	if c.service.Status().Generating {
		return fiber.NewError(fiber.StatusConflict, "generation already in progress")
	}

	ctx.Set("Content-Type", "text/event-stream")
	ctx.Set("Cache-Control", "no-cache")
	ctx.Set("Connection", "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	// The fiber ctx is recycled once the handler returns; the run owns its own.
	runCtx, cancel := context.WithCancel(context.Background())
	frames := make(chan dto.StreamFrame, 64)

	go func() {
		defer close(frames)
		defer cancel()

		result, err := c.service.Stream(runCtx, &req, func(f dto.StreamFrame) {
			frames <- f
		})
		final := dto.StreamFrame{Type: dto.FrameResult, Result: &result}
		if err != nil {
			final.Error = err.Error()
			c.logger.Warn(httpModule, "Agent run failed", map[string]interface{}{"error": err.Error()})
		}
		frames <- final
	}()

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		disconnected := false
		for f := range frames {
			if disconnected {
				continue
			}
			if err := writeSSE(w, f); err != nil {
				disconnected = true
				cancel()
				c.logger.Info(httpModule, "Stream client disconnected", nil)
			}
		}
		if !disconnected {
			w.WriteString("data: [DONE]\n\n")
			w.Flush()
		}
	})
	return nil
}

func writeSSE(w *bufio.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return w.Flush()
}

func (c *agentController) Cancel(ctx *fiber.Ctx) error {
	canceled := c.service.Cancel()
	return ctx.JSON(serverutils.SuccessResponse("Cancel requested", dto.CancelResponse{Canceled: canceled}))
}

func (c *agentController) Status(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Agent status", c.service.Status()))
}
