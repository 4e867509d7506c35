// Package objectstore uploads media to a public bucket and hands back the
// URL the gateway can fetch it from.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/salesbot/internal/config"
)

var ErrNotConfigured = errors.New("objectstore: no bucket configured")

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// New picks the backend named by STORAGE_BACKEND.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, ErrNotConfigured
		}
		return NewGCS(ctx, cfg.GCSBucket)
	case "s3", "":
		if cfg.S3Bucket == "" {
			return nil, ErrNotConfigured
		}
		return NewS3(S3Options{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		return nil, fmt.Errorf("objectstore: unknown backend %q", cfg.StorageBackend)
	}
}

// ExtFor maps a MIME type to the file extension used in object keys.
func ExtFor(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	switch {
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return ".jpg"
	case strings.Contains(mime, "png"):
		return ".png"
	case strings.Contains(mime, "gif"):
		return ".gif"
	case strings.Contains(mime, "webp"):
		return ".webp"
	case strings.Contains(mime, "mp4"):
		return ".mp4"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return ".mp3"
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	case strings.Contains(mime, "opus"):
		return ".opus"
	case strings.Contains(mime, "pdf"):
		return ".pdf"
	}
	return ".bin"
}
