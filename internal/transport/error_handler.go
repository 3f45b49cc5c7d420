package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/remindly/reminder-engine/internal/domain"
	"go.uber.org/zap"
)

// ErrorHandler renders handler errors as {"error": ..., "fields": [...]}.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := StatusCode(err)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "internal server error"
		}
		body := fiber.Map{"error": message}

		var verr *domain.ValidationError
		if errors.As(err, &verr) && verr.HasErrors() {
			body["fields"] = verr.Fields
		}

		return c.Status(code).JSON(body)
	}
}

// StatusCode maps domain and fiber errors to an HTTP status.
func StatusCode(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrAlreadySent):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyProcessed):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrThrottled):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}
