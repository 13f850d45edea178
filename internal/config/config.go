// Package config loads the settings snapshot the drop engine runs with:
// an optional .env file followed by the process environment, collected
// into one typed struct instead of scattered os.Getenv calls.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

type Settings struct {
	// Blob Store
	StorageBackend StorageBackend
	StorageRoot    string // local backend root directory

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// Upload limits and chunking
	MaxUploadSize int64 // bytes, 0 = unlimited
	ChunkSize     int64 // bytes

	// Slug generation
	SlugAlphabet   string
	SlugLength     int
	SlugMaxRetries int
	ReservedSlugs  map[string]struct{}

	// Operation deadline
	OperationDeadline time.Duration // 0 = none

	// Argon2 parameters for the per-drop passphrase verifier
	Argon2Time    uint32
	Argon2Memory  uint32
	Argon2Threads uint8
	Argon2KeyLen  uint32

	// Ambient
	MongoURI      string
	MongoDatabase string
	JWTSecret     string
	Port          string

	// Operator identity (single configured operator, not a user table)
	OperatorUsername     string
	OperatorPasswordHash string

	// Whether favorite toggles also bump updated_at. Defaults to false:
	// favoriting is treated as metadata, not content modification.
	FavoriteTouchesUpdatedAt bool
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// Load tries a .env file, ignores it if absent, then reads everything
// from the environment with sane defaults.
func Load() *Settings {
	if err := godotenv.Load(); err != nil {
		// No .env file found or error loading it; the process environment
		// is used as-is.
	}

	reserved := map[string]struct{}{}
	for _, seg := range strings.Split(envOr("TELEDROP_RESERVED_SLUGS",
		"upload,download,preview,keycheck,reset,password,permission,favorite,detail,api,auth,admin"), ",") {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			reserved[seg] = struct{}{}
		}
	}

	return &Settings{
		StorageBackend: StorageBackend(envOr("STORAGE_BACKEND", string(StorageLocal))),
		StorageRoot:    envOr("STORAGE_ROOT", "./data/blobs"),

		S3Endpoint:  envOr("MINIO_ENDPOINT", "localhost:9000"),
		S3AccessKey: envOr("MINIO_ACCESS_KEY", "minioadmin"),
		S3SecretKey: envOr("MINIO_SECRET_KEY", "minioadmin"),
		S3Bucket:    envOr("MINIO_BUCKET", "teledrop-files"),
		S3UseSSL:    envBoolOr("MINIO_USE_SSL", false),

		MaxUploadSize: envInt64Or("MAX_UPLOAD_SIZE", 0),
		ChunkSize:     envInt64Or("CHUNK_SIZE", 1<<20),

		SlugAlphabet:   envOr("SLUG_ALPHABET", "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"),
		SlugLength:     envIntOr("SLUG_LENGTH", 8),
		SlugMaxRetries: envIntOr("SLUG_MAX_RETRIES", 8),
		ReservedSlugs:  reserved,

		OperationDeadline: time.Duration(envInt64Or("OPERATION_DEADLINE_SECONDS", 0)) * time.Second,

		Argon2Time:    uint32(envIntOr("ARGON2_TIME", 1)),
		Argon2Memory:  uint32(envIntOr("ARGON2_MEMORY_KB", 64*1024)),
		Argon2Threads: uint8(envIntOr("ARGON2_THREADS", 4)),
		Argon2KeyLen:  uint32(envIntOr("ARGON2_KEY_LEN", 32)),

		MongoURI:      envOr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: envOr("MONGO_DATABASE", "teledrop"),
		JWTSecret:     envOr("JWT_SECRET", "change-me"),
		Port:          envOr("PORT", "8080"),

		OperatorUsername:     envOr("OPERATOR_USERNAME", "operator"),
		OperatorPasswordHash: envOr("OPERATOR_PASSWORD_HASH", ""),

		FavoriteTouchesUpdatedAt: envBoolOr("FAVORITE_TOUCHES_UPDATED_AT", false),
	}
}
