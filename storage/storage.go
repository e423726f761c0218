package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrInvalidBase64 marks a decode failure so callers can distinguish bad
// client input from a storage backend failure.
var ErrInvalidBase64 = errors.New("invalid base64 image data")

// MinioStore persists detection images in a MinIO bucket and hands out
// public URLs for the stored objects.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioStore connects to the object storage backend.
func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, bucket, publicURL string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &MinioStore{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Upload decodes a base64 image (optionally data-URL prefixed) and stores
// it under a device-namespaced, collision-free object name. It returns the
// public URL of the stored object. Decode failures wrap ErrInvalidBase64;
// anything else is a storage backend failure.
func (s *MinioStore) Upload(ctx context.Context, deviceID, base64Data string) (string, error) {
	data, contentType, err := DecodeBase64Image(base64Data)
	if err != nil {
		return "", err
	}

	objectName := ObjectName(deviceID, contentType)

	_, err = s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectName, err)
	}

	return s.publicURL + "/" + s.bucket + "/" + objectName, nil
}

// RemoveByURL deletes a stored object given its public URL. Used for
// best-effort cleanup when a detection is deleted from the dashboard.
func (s *MinioStore) RemoveByURL(ctx context.Context, imageURL string) error {
	u, err := url.Parse(imageURL)
	if err != nil {
		return fmt.Errorf("failed to parse image URL %s: %w", imageURL, err)
	}

	prefix := "/" + s.bucket + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return fmt.Errorf("image URL %s does not belong to bucket %s", imageURL, s.bucket)
	}
	objectName := strings.TrimPrefix(u.Path, prefix)

	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", objectName, err)
	}
	return nil
}

// DecodeBase64Image strips an optional data-URL header and decodes the
// remaining base64 payload. It returns the raw bytes and the content type
// declared by the header (image/jpeg when absent).
func DecodeBase64Image(base64Data string) ([]byte, string, error) {
	contentType := "image/jpeg"

	if strings.HasPrefix(base64Data, "data:") {
		idx := strings.Index(base64Data, ";base64,")
		if idx < 0 {
			return nil, "", fmt.Errorf("%w: malformed data URL header", ErrInvalidBase64)
		}
		if mediaType := base64Data[len("data:"):idx]; mediaType != "" {
			contentType = mediaType
		}
		base64Data = base64Data[idx+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}

	return data, contentType, nil
}

// ObjectName builds a device-namespaced object name with a timestamp and
// random suffix so concurrent uploads never collide or overwrite.
func ObjectName(deviceID, contentType string) string {
	ext := "jpg"
	if parts := strings.SplitN(contentType, "/", 2); len(parts) == 2 && parts[1] != "" {
		ext = parts[1]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s/%d_%s.%s", deviceID, time.Now().UnixNano(), suffix, ext)
}
