package web

import (
	"errors"

	"github.com/dukex/opflow/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// respond writes an RFC 7807 problem with the given status and type.
func respond(c fiber.Ctx, status int, kind string, detail string) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(problem)
}

func badRequest(c fiber.Ctx, detail string) error {
	return respond(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return respond(c, fiber.StatusNotFound, "not_found", detail)
}

func unavailable(c fiber.Ctx, err error) error {
	return respond(c, fiber.StatusServiceUnavailable, "unavailable", err.Error())
}

// handlePersistenceError maps repository errors to problem responses.
func handlePersistenceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsRunRecordNotFound(err):
		return respond(c, fiber.StatusNotFound, "run_record_not_found", "run record not found")
	case errors.Is(err, persistence.ErrInvalidKey):
		return badRequest(c, err.Error())
	default:
		return respond(c, fiber.StatusInternalServerError, "internal_error", err.Error())
	}
}
