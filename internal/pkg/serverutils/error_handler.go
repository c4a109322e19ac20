package serverutils

import (
	"errors"

	"daw-agent-be/pkg/agent/ledger"
	"daw-agent-be/pkg/agent/pipeline"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the JSON envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		code, body := classify(err)
		return ctx.Status(code).JSON(body)
	}
}

func classify(err error) (int, interface{}) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return fiber.StatusBadRequest, Response[map[string]string]{
			Success: false,
			Code:    fiber.StatusBadRequest,
			Message: "Validation failed",
			Data:    verr.Fields,
		}
	}

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ferr.Code, ErrorResponse(ferr.Code, ferr.Message)
	}

	var terr *pipeline.TransportError
	switch {
	case errors.Is(err, pipeline.ErrGenerationInProgress),
		errors.Is(err, ledger.ErrSessionNotOpen):
		return fiber.StatusConflict, ErrorResponse(fiber.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrModelNotSet),
		errors.Is(err, pipeline.ErrAPIKeyNotSet):
		return fiber.StatusBadRequest, ErrorResponse(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrNotInitialized):
		return fiber.StatusServiceUnavailable, ErrorResponse(fiber.StatusServiceUnavailable, err.Error())
	case errors.As(err, &terr):
		return fiber.StatusBadGateway, ErrorResponse(fiber.StatusBadGateway, err.Error())
	}
	return fiber.StatusInternalServerError, ErrorResponse(fiber.StatusInternalServerError, err.Error())
}
