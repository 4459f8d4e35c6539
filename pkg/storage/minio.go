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

	"github.com/noah-isme/newsdesk/pkg/config"
)

const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// MinioStore keeps blobs in an S3 compatible bucket.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicRead bool
	urlTTL     time.Duration
}

// NewMinioStore connects to the bucket described by cfg, creating it when
// missing. With PublicRead the bucket gets an anonymous read policy and object
// URLs are stable; otherwise URLs are presigned for URLTTL.
func NewMinioStore(ctx context.Context, cfg config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	if cfg.PublicRead {
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, fmt.Sprintf(publicReadPolicy, cfg.Bucket)); err != nil {
			return nil, fmt.Errorf("set bucket policy: %w", err)
		}
	}

	ttl := cfg.URLTTL
	if ttl <= 0 || ttl > 7*24*time.Hour {
		ttl = 24 * time.Hour
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, publicRead: cfg.PublicRead, urlTTL: ttl}, nil
}

// Upload streams r into the bucket under key.
func (s *MinioStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return Object{}, err
	}
	if size <= 0 {
		size = -1
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return Object{}, fmt.Errorf("put object %s: %w", key, err)
	}
	link, err := s.URL(ctx, key)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, URL: link, Size: info.Size, ContentType: contentType}, nil
}

// URL returns the address clients use to fetch key.
func (s *MinioStore) URL(ctx context.Context, key string) (string, error) {
	if s.publicRead {
		return objectURL(s.client.EndpointURL(), s.bucket, key), nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Delete removes the object. RemoveObject succeeds on missing keys, so the
// object is stat'ed first to report ErrObjectNotFound.
func (s *MinioStore) Delete(ctx context.Context, keyOrURL string) error {
	key, err := keyFromObjectURL(keyOrURL, s.bucket)
	if err != nil {
		return err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrObjectNotFound
		}
		return fmt.Errorf("stat object %s: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func objectURL(endpoint *url.URL, bucket, key string) string {
	u := *endpoint
	u.Path = "/" + bucket + "/" + key
	u.RawQuery = ""
	return u.String()
}

// keyFromObjectURL accepts a bare key, a path-style object URL or a presigned
// URL and returns the object key within bucket.
func keyFromObjectURL(keyOrURL, bucket string) (string, error) {
	if !strings.Contains(keyOrURL, "://") {
		return cleanKey(keyOrURL)
	}
	u, err := url.Parse(keyOrURL)
	if err != nil {
		return "", fmt.Errorf("parse object url: %w", err)
	}
	p := strings.TrimPrefix(u.Path, "/")
	if rest, ok := strings.CutPrefix(p, bucket+"/"); ok {
		p = rest
	}
	return cleanKey(p)
}
