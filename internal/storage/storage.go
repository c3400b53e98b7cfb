// Package storage keeps uploaded files such as inspection reports.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/config"
)

// ErrNotFound is returned when no object is stored under a key.
var ErrNotFound = errors.New("object not found")

// Object describes a stored file.
type Object struct {
	Key         string
	ContentType string
	Size        int64
}

// Store is the pluggable object storage abstraction.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, Object, error)
}

// Module provides the configured store to Fx.
var Module = fx.Provide(NewStore)

// NewStore builds the store selected by configuration (local or minio).
func NewStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Storage.Driver {
	case "", "local":
		return NewLocalStore(cfg.Storage.LocalDir)
	case "minio":
		return newMinioStore(lc, cfg.Storage.MinIO, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}
