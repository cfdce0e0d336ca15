// Package objectstore wraps the S3-compatible store (Wasabi) behind the three
// operations the rest of the system needs: presigned GETs, private PUTs and
// existence probes. Every failure path is fail-closed; callers never get an
// unsigned fallback URL.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	cfgpkg "github.com/lightboxhq/lightbox/pkg/config"
)

var (
	ErrMissingCredentials = errors.New("objectstore: credentials not configured")
	ErrEmptyKey           = errors.New("objectstore: empty object key")
)

// Store is the interface the gateway and migration worker depend on.
type Store interface {
	// PresignGet returns a time-limited signed URL for a private object.
	PresignGet(ctx context.Context, key string) (string, error)
	// Put uploads an object with a private ACL.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Exists reports whether the key currently resolves to an object.
	Exists(ctx context.Context, key string) (bool, error)
}

type Client struct {
	mc         *minio.Client
	bucket     string
	presignTTL time.Duration
	log        *zap.SugaredLogger
}

func NewClient(log *zap.SugaredLogger, cfg *cfgpkg.Config) (*Client, error) {
	oc := cfg.ObjectStore
	if oc.AccessKey == "" || oc.SecretKey == "" {
		log.Error("objectstore credentials not found")
		return nil, ErrMissingCredentials
	}
	mc, err := minio.New(oc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(oc.AccessKey, oc.SecretKey, ""),
		Secure: oc.UseSSL,
		Region: oc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create objectstore client: %w", err)
	}
	ttl := oc.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Client{mc: mc, bucket: oc.Bucket, presignTTL: ttl, log: log}, nil
}

func (c *Client) PresignGet(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, c.presignTTL, url.Values{})
	if err != nil {
		c.log.Errorw("presign failed", "key", key, "err", err)
		return "", fmt.Errorf("failed to presign object %q: %w", key, err)
	}
	return u.String(), nil
}

func (c *Client) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if key == "" {
		return ErrEmptyKey
	}
	_, err := c.mc.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "private"},
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q: %w", key, err)
	}
	return nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	_, err := c.mc.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object %q: %w", key, err)
	}
	return true, nil
}
