// Package auth issues and verifies the operator's JWT using bcrypt for
// the password check and golang-jwt for the token. There is exactly one
// operator account, read from config.Settings rather than a users
// collection.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/teledrop/teledrop/internal/config"
)

const OwnerRole = "owner"

// HashOperatorPassword is used once, offline, to produce the value an
// operator puts in OPERATOR_PASSWORD_HASH.
func HashOperatorPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// Login verifies the operator's credentials and issues a bearer JWT.
func Login(cfg *config.Settings, username, password string) (string, error) {
	if cfg.OperatorPasswordHash == "" {
		return "", fmt.Errorf("auth: no operator password configured")
	}
	if username != cfg.OperatorUsername {
		return "", fmt.Errorf("auth: invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(cfg.OperatorPasswordHash), []byte(password)) != nil {
		return "", fmt.Errorf("auth: invalid credentials")
	}
	return generateJWT(cfg.JWTSecret, cfg.OperatorUsername)
}

func generateJWT(secret, ownerID string) (string, error) {
	claims := jwt.MapClaims{
		"owner_id": ownerID,
		"role":     OwnerRole,
		"exp":      time.Now().Add(4 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Identity is what a verified bearer token or session resolves to.
type Identity struct {
	OwnerID string
	Role    string
}

// Verify parses and validates tokenString, returning the resolved
// Identity. Any parse or validation failure is reported as a single
// error; callers treat that as "unauthenticated", not a crash.
func Verify(secret, tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("auth: invalid claims")
	}
	ownerID, ok := claims["owner_id"].(string)
	if !ok || ownerID == "" {
		return nil, fmt.Errorf("auth: invalid token payload")
	}
	role, _ := claims["role"].(string)
	return &Identity{OwnerID: ownerID, Role: role}, nil
}
