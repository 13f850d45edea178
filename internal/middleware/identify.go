// Package middleware resolves the caller identity the core consumes:
// an already-resolved identity from a pluggable verifier (bearer JWT,
// session cookie, or API key), stashed in fiber.Locals. Most operations
// are legal for an anonymous caller, so Identify only resolves
// identity, it never enforces it. RequireAuth is the explicit gate for
// routes no anonymous caller may use; ownership and passphrase checks
// happen in the access evaluator.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teledrop/teledrop/internal/access"
	"github.com/teledrop/teledrop/internal/apikey"
	"github.com/teledrop/teledrop/internal/auth"
	"github.com/teledrop/teledrop/internal/config"
)

const callerLocalsKey = "caller"

// Identify resolves a Caller from, in order: a Bearer JWT, a session
// cookie carrying the same JWT, or an X-API-Key header resolved through
// apikey.Store. Failure to resolve any of them simply leaves the caller
// Anonymous; it never aborts the request.
func Identify(cfg *config.Settings, keys *apikey.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := access.Caller{}

		if tokenString := bearerToken(c); tokenString != "" {
			if identity, err := auth.Verify(cfg.JWTSecret, tokenString); err == nil {
				caller = access.Caller{Authenticated: true, ID: identity.OwnerID}
			}
		} else if cookie := c.Cookies("teledrop_session"); cookie != "" {
			if identity, err := auth.Verify(cfg.JWTSecret, cookie); err == nil {
				caller = access.Caller{Authenticated: true, ID: identity.OwnerID}
			}
		}

		if !caller.Authenticated && keys != nil {
			if secret := c.Get("X-API-Key"); secret != "" {
				if key, err := keys.Validate(c.Context(), secret); err == nil && key != nil {
					caller = access.Caller{Authenticated: true, ID: key.OwnerID}
					c.Locals("api_key", key)
				}
			}
		}

		c.Locals(callerLocalsKey, caller)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// Caller reads the Caller previously resolved by Identify.
func Caller(c *fiber.Ctx) access.Caller {
	if v, ok := c.Locals(callerLocalsKey).(access.Caller); ok {
		return v
	}
	return access.Caller{}
}

// RequireAuth rejects the request early when no identity was resolved,
// for routes that are never legal for anonymous callers (listing,
// operator-only admin endpoints).
func RequireAuth(c *fiber.Ctx) error {
	if !Caller(c).Authenticated {
		return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
	}
	return c.Next()
}
