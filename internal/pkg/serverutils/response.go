package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"clinical-dss-be/internal/pkg/apperr"
)

type ResponseEnvelope struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorEnvelope struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func SuccessResponse(message string, data interface{}) ResponseEnvelope {
	return ResponseEnvelope{Message: message, Data: data}
}

// ErrorHandlerMiddleware translates service errors into JSON envelopes.
// Only the sanitized message leaves the process; the cause stays in logs.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorEnvelope{Message: fiberErr.Message})
		}

		kind := apperr.KindOf(err)
		return ctx.Status(statusForKind(kind)).JSON(ErrorEnvelope{
			Message: apperr.ClientMessage(err),
			Kind:    string(kind),
		})
	}
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindCapacityExceeded:
		return fiber.StatusTooManyRequests
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindUpstreamTransient, apperr.KindUpstreamUnavailable:
		return fiber.StatusBadGateway
	case apperr.KindUpstreamPermanent:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
