package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"crew_assessment_backend/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StorageProvider persists candidate recordings. Save returns the stored
// location in a provider-specific form.
type StorageProvider interface {
	Save(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error)
}

// NewStorageProvider picks the provider from config; unknown types fall
// back to local disk.
func NewStorageProvider(cfg *config.StorageConfig) (StorageProvider, error) {
	if cfg.Type == "minio" {
		return newMinioProvider(cfg)
	}
	return &LocalProvider{BaseDir: cfg.LocalPath}, nil
}

// LocalProvider writes recordings under a base directory.
type LocalProvider struct {
	BaseDir string
}

func (p *LocalProvider) Save(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	path := filepath.Join(p.BaseDir, objectName)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// MinioProvider stores recordings in an S3-compatible bucket.
type MinioProvider struct {
	client *minio.Client
	bucket string
}

func newMinioProvider(cfg *config.StorageConfig) (*MinioProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioProvider{client: client, bucket: cfg.MinioBucket}, nil
}

func (p *MinioProvider) Save(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := p.client.PutObject(ctx, p.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("minio://%s/%s", p.bucket, objectName), nil
}
