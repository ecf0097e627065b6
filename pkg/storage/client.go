package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pokedexos/dexcache/pkg/errors"
)

// objectGetter is the slice of the S3 API the client needs
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Client fetches assets addressed as s3://bucket/key
type S3Client struct {
	s3Client objectGetter
	maxBytes int64
}

// NewS3Client creates a new S3 client for anonymous access
func NewS3Client(ctx context.Context, region string, maxBytes int64) (*S3Client, error) {
	slog.Info("s3_client_init", "region", region)

	// Load AWS config with anonymous credentials
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &S3Client{
		s3Client: s3.NewFromConfig(cfg),
		maxBytes: maxBytes,
	}, nil
}

// ParseS3URL splits s3://bucket/key into bucket and key
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 url has no key: %s", raw)
	}
	return u.Host, key, nil
}

// Fetch downloads an object into memory
func (c *S3Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrTransport, "invalid s3 url")
	}

	slog.Info("s3_download_start", "bucket", bucket, "s3_key", key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "bucket", bucket, "s3_key", key, "error", err)
		return nil, errors.Mark(err, errors.ErrTransport, "failed to get object from S3")
	}
	defer result.Body.Close()

	data, err := readLimited(result.Body, c.maxBytes)
	if err != nil {
		slog.Error("s3_download_failed", "s3_key", key, "error", err)
		return nil, errors.Mark(err, errors.ErrTransport, "failed to download object")
	}

	slog.Info("s3_download_complete", "s3_key", key, "size", len(data))
	return data, nil
}

// readLimited reads at most limit bytes and fails if the body is larger.
// A non-positive limit disables the check.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}
