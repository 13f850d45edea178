package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teledrop/teledrop/internal/auth"
	"github.com/teledrop/teledrop/internal/config"
)

type AuthHandler struct {
	Cfg *config.Settings
}

func NewAuthHandler(cfg *config.Settings) *AuthHandler {
	return &AuthHandler{Cfg: cfg}
}

// Login authenticates against the single configured operator identity;
// there is no multi-user registration flow.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	token, err := auth.Login(h.Cfg, request.Username, request.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}
	return c.JSON(fiber.Map{"token": token})
}
