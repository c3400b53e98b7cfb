package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/loom/internal/config"
)

type minioStore struct {
	client *minio.Client
	bucket string
}

func newMinioStore(lc fx.Lifecycle, cfg config.MinIO, logger *zap.Logger) (Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	store := &minioStore{client: client, bucket: cfg.Bucket}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				exists, err := client.BucketExists(ctx, cfg.Bucket)
				if err != nil {
					return fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
				}
				if !exists {
					if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
						return fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
					}
					logger.Info("created storage bucket", zap.String("bucket", cfg.Bucket))
				}
				logger.Info("object storage connected", zap.String("endpoint", cfg.Endpoint))
				return nil
			},
		})
	}
	return store, nil
}

func (s *minioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}
	return nil
}

func (s *minioStore) Open(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, fmt.Errorf("get object: %w", err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, fmt.Errorf("stat object: %w", err)
	}
	return obj, Object{Key: key, ContentType: info.ContentType, Size: info.Size}, nil
}
