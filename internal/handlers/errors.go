// Package handlers is the thin HTTP surface: form/JSON decoding,
// calling into the coordinator, and mapping typed errors to status
// codes. writeError below is that mapping, driven entirely by
// apperr.Kind.
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teledrop/teledrop/internal/apperr"
)

func writeError(c *fiber.Ctx, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	status := fiber.StatusInternalServerError
	switch ae.Kind {
	case apperr.KindNotFound:
		status = fiber.StatusNotFound
	case apperr.KindAuthRequired, apperr.KindPasswordRequired, apperr.KindPasswordInvalid:
		status = fiber.StatusUnauthorized
	case apperr.KindForbidden:
		status = fiber.StatusForbidden
	case apperr.KindSlugTaken, apperr.KindConflict:
		status = fiber.StatusConflict
	case apperr.KindSizeLimitExceeded:
		status = fiber.StatusRequestEntityTooLarge
	case apperr.KindValidationError, apperr.KindSlugInvalid, apperr.KindSlugExhausted:
		status = fiber.StatusBadRequest
	case apperr.KindStorage:
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(fiber.Map{
		"error": ae.Kind,
		"message": ae.Message,
	})
}
