// Package passphrase hashes and verifies the per-drop passphrase using
// Argon2id. This is distinct from the bcrypt hash used for the operator
// login password (see internal/auth); both algorithms come from
// golang.org/x/crypto.
package passphrase

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLen = 16
)

// Params controls the Argon2id cost, taken from config.Settings.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// Hash produces a verifier string encoding the parameters, salt, and
// derived key so Verify is self-contained and rotation-safe if Params
// change later.
func Hash(clear string, p Params) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("passphrase: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(clear), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		p.Time, p.Memory, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks clear against an encoded verifier in constant time. A
// malformed verifier is treated as a non-match, never a crash or panic.
func Verify(encoded, clear string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	var time, threads uint64
	var memory uint64
	if _, err := fmt.Sscanf(parts[1], "%d", &time); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &memory); err != nil {
		return false
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(clear), salt, uint32(time), uint32(memory), uint8(threads), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
