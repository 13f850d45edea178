package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/teledrop/teledrop/internal/config"
)

// New selects a Blob Store backend by configuration. Local and S3 are
// both supported behind the same BlobStore contract.
func New(cfg *config.Settings, log *logrus.Entry) (BlobStore, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal, "":
		return NewLocal(cfg.StorageRoot, log)
	case config.StorageS3:
		return NewS3(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL, log)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
	}
}
