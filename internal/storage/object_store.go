package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore provides access to object storage for record attachments.
// Upload returns the public URL the owning record stores; DeleteByURL accepts
// that same URL back and reports false (not an error) for missing objects.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	DeleteByURL(ctx context.Context, fileURL string) (bool, error)
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// MinioConfig configures the MinIO-backed object store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the origin objects are served from, e.g.
	// "https://storage.example.com". Defaults to the endpoint itself.
	PublicBaseURL string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, publicBaseURL: base}, nil
}

// Upload stores an object and returns its public URL.
func (m *MinioStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("object key required")
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return PublicURL(m.publicBaseURL, m.bucket, key), nil
}

// DeleteByURL removes the object a public URL points at.
// Returns false when the URL does not resolve to an object in this bucket.
func (m *MinioStore) DeleteByURL(ctx context.Context, fileURL string) (bool, error) {
	key, ok := KeyFromURL(fileURL, m.publicBaseURL, m.bucket)
	if !ok {
		return false, nil
	}
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("delete object: %w", err)
	}
	return true, nil
}

// PublicURL builds the public URL for an object key.
func PublicURL(baseURL, bucket, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + bucket + "/" + key
}

// KeyFromURL extracts the object key from a public URL, verifying that it
// points into the given base URL and bucket.
func KeyFromURL(fileURL, baseURL, bucket string) (string, bool) {
	fileURL = strings.TrimSpace(fileURL)
	if fileURL == "" {
		return "", false
	}
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(baseURL)
	if err != nil || parsed.Host != base.Host {
		return "", false
	}
	prefix := strings.TrimRight(base.Path, "/") + "/" + bucket + "/"
	if !strings.HasPrefix(parsed.Path, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(parsed.Path, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}
