package message

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"strings"
	"time"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/randx"
)

const (
	// MaxImageSizeMB is the largest image accepted, in megabytes.
	MaxImageSizeMB = 5

	// MaxImageSize is MaxImageSizeMB in bytes.
	MaxImageSize = MaxImageSizeMB * 1024 * 1024

	// ImageKeyPrefix namespaces message images in the bucket.
	ImageKeyPrefix = "messages"

	// PresignedURLDuration bounds how long a presigned upload URL stays valid.
	PresignedURLDuration = 5 * time.Minute
)

// AllowedMIMETypes maps each accepted image MIME type to the extension used for its key.
var AllowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageStore is the object storage the service uploads message images to.
type ImageStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
	PublicURL(key string) string
	KeyFromURL(rawURL string) (string, bool)
	Delete(ctx context.Context, key string) error
}

// ValidateImage checks the MIME type and size of an image before it is uploaded.
func ValidateImage(mimeType string, size int64) *errs.CustomError {
	if _, ok := AllowedMIMETypes[strings.ToLower(mimeType)]; !ok {
		return errs.NewError(errs.ErrImageInvalid)
	}
	if size <= 0 {
		return errs.NewError(errs.ErrImageInvalid)
	}
	if size > MaxImageSize {
		return errs.NewError(errs.ErrFileSizeTooLarge, MaxImageSizeMB)
	}
	return nil
}

// decodeDataURL splits "data:<mime>;base64,<payload>" into its MIME type and bytes.
func decodeDataURL(raw string) (string, []byte, *errs.CustomError) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return "", nil, errs.NewError(errs.ErrImageInvalid)
	}

	mimeType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return "", nil, errs.NewError(errs.ErrImageInvalid)
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageSize+3 {
		return "", nil, errs.NewError(errs.ErrFileSizeTooLarge, MaxImageSizeMB)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, errs.NewError(errs.ErrImageInvalid)
	}

	if customErr := ValidateImage(mimeType, int64(len(data))); customErr != nil {
		return "", nil, customErr
	}

	return strings.ToLower(mimeType), data, nil
}

// resolveImage turns the image field of a send request into the stored image reference.
// Inline data URLs are uploaded; keys returned by the presign endpoint are resolved to their
// public URL. Anything else is rejected.
func (s *Service) resolveImage(ctx context.Context, image string) (string, error) {
	if image == "" {
		return "", nil
	}

	if s.images == nil {
		return "", errs.NewError(errs.ErrImageUploadsDisabled)
	}

	if strings.HasPrefix(image, ImageKeyPrefix+"/") && !strings.Contains(image, "..") {
		return s.images.PublicURL(image), nil
	}

	if !strings.HasPrefix(image, "data:") {
		return "", errs.NewError(errs.ErrImageInvalid)
	}

	mimeType, data, customErr := decodeDataURL(image)
	if customErr != nil {
		return "", customErr
	}

	key := randx.ObjectKey(ImageKeyPrefix, AllowedMIMETypes[mimeType])
	if err := s.images.Upload(ctx, key, mimeType, bytes.NewReader(data)); err != nil {
		return "", errs.Wrap(errs.ErrFileStorageFailed, err)
	}

	return s.images.PublicURL(key), nil
}

// removeImage deletes the stored object behind a message image. Failures only leave an
// orphaned object behind, so they are logged and ignored.
func (s *Service) removeImage(ctx context.Context, image string) {
	if image == "" || s.images == nil {
		return
	}

	key, ok := s.images.KeyFromURL(image)
	if !ok {
		return
	}

	if err := s.images.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to remove message image.")
	}
}
