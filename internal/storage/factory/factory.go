// Package factory builds the configured ObjectStore backend.
package factory

import (
	"context"
	"fmt"

	"github.com/chartgpt/chartgpt/internal/config"
	"github.com/chartgpt/chartgpt/internal/storage"
	"github.com/chartgpt/chartgpt/internal/storage/local"
	s3store "github.com/chartgpt/chartgpt/internal/storage/s3"
)

func Open(ctx context.Context, cfg config.ObjectStoreConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "", config.ObjectStoreLocal:
		return local.New(cfg.LocalDir)
	case config.ObjectStoreS3:
		return s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.Endpoint,
			Region:           cfg.Region,
			Bucket:           cfg.Bucket,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			UseSSL:           cfg.UseSSL,
			Prefix:           cfg.Prefix,
			AutoCreateBucket: cfg.AutoCreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported object store backend %q", cfg.Backend)
	}
}
