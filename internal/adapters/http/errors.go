package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-classroom/internal/core/domain"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEngineUnreachable),
		errors.Is(err, domain.ErrPortRangeExhausted):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, domain.ErrRecordNotFound),
		errors.Is(err, domain.ErrResourceNotFound),
		errors.Is(err, domain.ErrContainerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRecord),
		errors.Is(err, domain.ErrNameInUse):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidContent),
		errors.Is(err, domain.ErrContentMissing),
		errors.Is(err, domain.ErrPortOutOfRange):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBuildFailure),
		errors.Is(err, domain.ErrContainerStartFailure),
		errors.Is(err, domain.ErrRenderFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}
