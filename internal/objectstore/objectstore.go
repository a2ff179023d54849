// Package objectstore mirrors export files to S3-compatible storage.
package objectstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Mirror uploads a local file under an object key.
type Mirror interface {
	Put(ctx context.Context, key, localPath string) error
	Enabled() bool
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// New returns a minio-backed mirror, or a no-op mirror when no endpoint is set.
func New(cfg Config) (Mirror, error) {
	if cfg.Endpoint == "" {
		return Noop{}, nil
	}
	return NewMinio(cfg)
}

// Noop discards uploads.
type Noop struct{}

func (Noop) Put(context.Context, string, string) error { return nil }
func (Noop) Enabled() bool                             { return false }

type MinioMirror struct {
	client *miniogo.Client
	bucket string
	prefix string
}

func NewMinio(cfg Config) (*MinioMirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioMirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (m *MinioMirror) Enabled() bool { return true }

// EnsureBucket creates the bucket if it does not exist yet.
func (m *MinioMirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
	}
	return nil
}

// Put uploads localPath to <prefix>/<key>.
func (m *MinioMirror) Put(ctx context.Context, key, localPath string) error {
	objectKey := Key(m.prefix, key)
	_, err := m.client.FPutObject(ctx, m.bucket, objectKey, localPath, miniogo.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return nil
}

// Key joins non-empty parts with '/' and strips leading and trailing slashes.
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}
