// Package storage stores pickup photos in S3-compatible object storage.
package storage

import (
	"context"
	"time"
)

// Blob describes a stored object. ID is the object key and is what Delete and
// Download accept.
type Blob struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Bytes  int64  `json:"bytes"`
}

// PresignedURL contains a temporary download link.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// BlobStore defines the object storage operations used by the modules.
type BlobStore interface {
	// Upload stores data under namespace (e.g. "pickups/<collectorId>") with a
	// unique key derived from fileName.
	Upload(ctx context.Context, namespace, fileName, contentType string, data []byte) (Blob, error)
	Delete(ctx context.Context, id string) error
	Download(ctx context.Context, id string) ([]byte, error)
	GenerateDownloadURL(ctx context.Context, id string) (*PresignedURL, error)
	EnsureBucketExists(ctx context.Context) error
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinIOBucketPhotos() string
	GetMinIOPublicBaseURL() string
	IsMinIOEnabled() bool
}
