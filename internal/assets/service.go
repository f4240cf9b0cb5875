// Package assets stores uploaded binary assets (avatars, spotlight images,
// landing page previews) in S3-compatible object storage.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service wraps a MinIO client scoped to a single bucket.
type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to object storage and ensures the bucket exists.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connect: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads an object and returns its storage key.
func (s *Service) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// Get streams an object. The caller must close the returned reader.
func (s *Service) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object %s: %w", key, err)
	}

	// GetObject is lazy; Stat surfaces not-found before the caller reads.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, "", fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, info.ContentType, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// PresignedURL returns a time-limited download URL for an object.
func (s *Service) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

// AvatarKey builds the storage key for a user's avatar.
func AvatarKey(userID, filename string) string {
	return "avatars/" + userID + sanitizedExt(filename)
}

// SpotlightKey builds the storage key for a spotlight image.
func SpotlightKey(spotlightID, filename string) string {
	return "spotlights/" + spotlightID + sanitizedExt(filename)
}

// PreviewKey builds the storage key for a landing page preview screenshot.
func PreviewKey(pageID string) string {
	return "previews/" + pageID + ".png"
}

func sanitizedExt(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg":
		return ext
	default:
		return ".bin"
	}
}
