package serverutils

import (
	"time"

	"daw-agent-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const httpModule = "HTTP"

// RequestLogger logs one line per request after the error handler has set
// the final status. Server errors log at error level, client errors at warn.
func RequestLogger(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()

		status := ctx.Response().StatusCode()
		details := map[string]interface{}{
			"method":   ctx.Method(),
			"path":     ctx.Path(),
			"status":   status,
			"duration": time.Since(start).String(),
		}
		if err != nil {
			details["error"] = err.Error()
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			log.Error(httpModule, "Request failed", details)
		case status >= fiber.StatusBadRequest:
			log.Warn(httpModule, "Request rejected", details)
		default:
			log.Debug(httpModule, "Request served", details)
		}
		return err
	}
}
