package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cinestream/server/internal/config"
	"github.com/cinestream/server/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PosterStore holds movie poster images in an S3-compatible bucket.
type PosterStore struct {
	client *minio.Client
	bucket string
}

func NewPosterStore(cfg config.MinIOConfig) (*PosterStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &PosterStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (p *PosterStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := p.client.PutObject(ctx, p.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		logger.Error("poster_upload_failed", err, map[string]interface{}{
			"object_name":  objectName,
			"size":         size,
			"content_type": contentType,
			"bucket":       p.bucket,
		})
	} else {
		logger.Info("poster_upload_success", map[string]interface{}{
			"object_name":  objectName,
			"size":         size,
			"content_type": contentType,
			"bucket":       p.bucket,
		})
	}
	return err
}

func (p *PosterStore) Delete(ctx context.Context, objectName string) error {
	err := p.client.RemoveObject(ctx, p.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		logger.Error("poster_delete_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      p.bucket,
		})
	}
	return err
}

func (p *PosterStore) PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	urlValue, err := p.client.PresignedGetObject(ctx, p.bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return urlValue.String(), nil
}

func (p *PosterStore) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", p.bucket, err)
	}
	return nil
}
