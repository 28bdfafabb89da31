package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/sway/pkg/backend/remote"
	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/personalize"
	"github.com/papercomputeco/sway/pkg/session"
	"github.com/papercomputeco/sway/pkg/vector"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var apiErr *remote.APIError
	switch {
	case session.IsNotFound(err),
		errors.Is(err, vector.ErrNotFound),
		errors.Is(err, blueprint.ErrUnknownPreset):
		return fiber.StatusNotFound

	case errors.Is(err, personalize.ErrBiasRequired),
		errors.Is(err, personalize.ErrUnknownVectorStore),
		errors.Is(err, blueprint.ErrMissingCustomID),
		errors.Is(err, blueprint.ErrMissingFactoryID),
		errors.Is(err, blueprint.ErrUnknownState),
		errors.Is(err, vector.ErrDimensionMismatch):
		return fiber.StatusBadRequest

	case errors.As(err, &apiErr):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// fail writes err with the mapped status code.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}
