package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wali1264/dokteryaraflain/pkg/config"
)

// ObjectStore uploads named binary objects and hands back public URLs.
// Old objects are never deleted; a letterhead URL handed out once stays
// downloadable.
type ObjectStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewObjectStore creates the letterhead bucket client and ensures the
// bucket exists.
func NewObjectStore(cfg *config.ObjectsConfig) (*ObjectStore, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	ctx := context.Background()
	exists, err := c.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := c.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	base := cfg.PublicBase
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}

	return &ObjectStore{client: c, bucket: cfg.Bucket, publicBase: base}, nil
}

// Upload stores data under name and returns its public URL.
func (o *ObjectStore) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	_, err := o.client.PutObject(ctx, o.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return o.PublicURL(name), nil
}

// PublicURL renders the public URL for an object name.
func (o *ObjectStore) PublicURL(name string) string {
	u, err := url.Parse(o.publicBase)
	if err != nil {
		return strings.TrimRight(o.publicBase, "/") + "/" + path.Join(o.bucket, name)
	}
	u.Path = path.Join(u.Path, o.bucket, name)
	return u.String()
}
