package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	// PresignedURLTTL is the lifetime of generated download links.
	PresignedURLTTL = 15 * time.Minute
	// maxDownloadSize caps reads of stored photos.
	maxDownloadSize = 32 << 20
)

// MinIOService implements BlobStore using MinIO.
type MinIOService struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

var _ BlobStore = (*MinIOService)(nil)

// NewMinIOService creates a new MinIO storage service for the photos bucket.
func NewMinIOService(cfg Config) (*MinIOService, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, fmt.Errorf("MinIO is not configured")
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	publicBase := strings.TrimRight(cfg.GetMinIOPublicBaseURL(), "/")
	if publicBase == "" {
		scheme := "http"
		if cfg.GetMinIOUseSSL() {
			scheme = "https"
		}
		publicBase = scheme + "://" + cfg.GetMinIOEndpoint()
	}

	return &MinIOService{
		client:     client,
		bucket:     cfg.GetMinIOBucketPhotos(),
		publicBase: publicBase,
	}, nil
}

// EnsureBucketExists creates the photos bucket if it doesn't exist.
func (s *MinIOService) EnsureBucketExists(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload stores data and returns its Blob, including image dimensions.
func (s *MinIOService) Upload(ctx context.Context, namespace, fileName, contentType string, data []byte) (Blob, error) {
	fileKey := ObjectKey(namespace, fileName)

	_, err := s.client.PutObject(ctx, s.bucket, fileKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Blob{}, fmt.Errorf("failed to upload file %s: %w", fileKey, err)
	}

	width, height, format := Dimensions(data)
	return Blob{
		ID:     fileKey,
		URL:    s.publicBase + "/" + s.bucket + "/" + fileKey,
		Width:  width,
		Height: height,
		Format: format,
		Bytes:  int64(len(data)),
	}, nil
}

// Download reads a stored object fully into memory.
func (s *MinIOService) Download(ctx context.Context, id string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", id, err)
	}
	return data, nil
}

// GenerateDownloadURL creates a presigned URL for downloading an object.
func (s *MinIOService) GenerateDownloadURL(ctx context.Context, id string) (*PresignedURL, error) {
	expiresAt := time.Now().Add(PresignedURLTTL)
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucket, id, PresignedURLTTL, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned download URL: %w", err)
	}
	return &PresignedURL{URL: presignedURL.String(), FileKey: id, ExpiresAt: expiresAt}, nil
}

// Delete removes an object from storage.
func (s *MinIOService) Delete(ctx context.Context, id string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}
	return nil
}

// ObjectKey builds "<namespace>/<base>_<rand8><ext>" so uploads never collide.
func ObjectKey(namespace, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "photo"
	}
	ext := strings.ToLower(path.Ext(name))
	baseName := sanitizeKeyPart(strings.TrimSuffix(name, path.Ext(name)))
	return path.Join(strings.Trim(namespace, "/"), fmt.Sprintf("%s_%s%s", baseName, uuid.New().String()[:8], ext))
}

func sanitizeKeyPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "photo"
	}
	return b.String()
}
