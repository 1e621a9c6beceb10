package storage

import (
	"context"
	"fmt"

	"github.com/vibast-solutions/ms-go-filedrop/config"
)

// NewFromConfig builds the configured backend, wrapped in an EncryptedStore
// when an age identity is configured.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	var (
		store BlobStore
		err   error
	)

	switch cfg.Driver {
	case "memory":
		store = NewMemoryStore()
	case "filesystem":
		store, err = NewFSStore(cfg.Root)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 storage requires a bucket")
		}
		store, err = NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AgeIdentity == "" && cfg.AgeIdentityFile == "" {
		return store, nil
	}

	identity, err := LoadIdentity(cfg.AgeIdentity, cfg.AgeIdentityFile)
	if err != nil {
		return nil, err
	}
	return NewEncryptedStore(store, identity), nil
}
