/*
Package storage stores message images in S3-compatible object storage.
*/
package storage

import (
	"context"
	"io"
	"time"
)

// ServiceConfig holds the connection settings for the object store.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// S3PublicBaseURL is the public origin objects are served from. Empty means
	// "<endpoint>/<bucket>".
	S3PublicBaseURL string
}

// Enabled reports whether enough settings are present to talk to the store.
func (c ServiceConfig) Enabled() bool {
	return c.S3BucketName != "" && c.S3Endpoint != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
}

// StorageService is the object store used for message images.
type StorageService interface {
	// Upload streams body to key.
	Upload(ctx context.Context, key, contentType string, body io.Reader) error

	// PublicURL returns the URL clients load key from.
	PublicURL(key string) string

	// KeyFromURL reverses PublicURL. ok is false for URLs outside the store.
	KeyFromURL(rawURL string) (key string, ok bool)

	// PresignUpload returns a URL the client can PUT an object of the given type and size to.
	PresignUpload(ctx context.Context, key, mimeType string, size int64, duration time.Duration) (string, error)

	// Delete removes key.
	Delete(ctx context.Context, key string) error
}

// NewStorageService returns the S3 implementation for cfg.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	return newS3Client(ctx, cfg)
}
