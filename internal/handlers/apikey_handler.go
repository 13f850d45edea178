package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teledrop/teledrop/internal/apikey"
	"github.com/teledrop/teledrop/internal/middleware"
)

// APIKeyHandler exposes the minimal CRUD surface for managing API keys,
// consulted at the HTTP layer only.
type APIKeyHandler struct {
	Keys *apikey.Store
}

func NewAPIKeyHandler(keys *apikey.Store) *APIKeyHandler {
	return &APIKeyHandler{Keys: keys}
}

func (h *APIKeyHandler) Create(c *fiber.Ctx) error {
	caller := middleware.Caller(c)
	if !caller.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	var request struct {
		Permissions []apikey.Permission `json:"permissions"`
	}
	_ = c.BodyParser(&request)

	secret, key, err := h.Keys.Create(c.Context(), caller.ID, request.Permissions)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": key.ID, "key": secret})
}

func (h *APIKeyHandler) List(c *fiber.Ctx) error {
	caller := middleware.Caller(c)
	keys, err := h.Keys.List(c.Context(), caller.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(keys)
}

func (h *APIKeyHandler) Revoke(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid key id"})
	}
	if err := h.Keys.Revoke(c.Context(), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
