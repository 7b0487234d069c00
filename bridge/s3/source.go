// Package s3 provides an S3-compatible data source for the bridge.
//
// This adapter supports AWS S3, MinIO, LocalStack, Cloudflare R2,
// and other S3-compatible object stores.
//
// # Contract Compliance
//
//   - Length: HeadObject ContentLength; missing keys return bridge.ErrNotFound.
//   - Read: true range reads via the HTTP Range header, never a full download.
//     A range starting at or past EOF returns an empty slice; a range extending
//     past EOF returns the available bytes.
//
// # Identifiers
//
// Identifiers are resolved through the configured scheme
// (default "rtcs3:" <-> "s3:") to URLs of the form s3://bucket/key.
// An empty host selects the configured bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/rtcbridge/bridge"
)

// maxReadLength bounds a single range read so the length fits in an int on
// 32-bit platforms.
const maxReadLength = int64(math.MaxInt32)

// DefaultScheme intercepts object-store assets under "rtcs3:".
var DefaultScheme = bridge.Scheme{Custom: "rtcs3", Native: "s3"}

// API defines the subset of the S3 client interface used by the source.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config holds configuration for the S3 source.
type Config struct {
	// Bucket is the default S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all operations.
	// A trailing slash is added if missing.
	Prefix string

	// Scheme maps identifiers to s3:// URLs. Default: DefaultScheme.
	Scheme bridge.Scheme
}

// Source implements bridge.DataSource using an S3-compatible backend.
// It is safe for concurrent use.
type Source struct {
	client API
	bucket string
	prefix string
	scheme bridge.Scheme
}

// New creates an S3 source with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint.
// Use NewClient or github.com/aws/aws-sdk-go-v2/config to build one.
func New(client API, cfg Config) (*Source, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	scheme := cfg.Scheme
	if scheme == (bridge.Scheme{}) {
		scheme = DefaultScheme
	}
	if err := scheme.Validate(); err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Source{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		scheme: scheme,
	}, nil
}

// ResourceID returns the identifier for key in the source's default bucket.
func (s *Source) ResourceID(key string) (bridge.ResourceID, error) {
	u := url.URL{Scheme: s.scheme.Native, Host: s.bucket, Path: "/" + strings.TrimPrefix(key, "/")}
	return s.scheme.Rewrite(u.String())
}

// Length returns the object size.
func (s *Source) Length(ctx context.Context, id bridge.ResourceID) (int64, error) {
	bucket, key, err := s.locate(id)
	if err != nil {
		return 0, err
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, bridge.ErrNotFound
		}
		return 0, fmt.Errorf("s3: head object: %w", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Read reads a byte range from the object.
func (s *Source) Read(ctx context.Context, id bridge.ResourceID, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || length > maxReadLength {
		return nil, bridge.ErrInvalidRange
	}
	if offset > math.MaxInt64-length {
		return nil, bridge.ErrInvalidRange
	}

	bucket, key, err := s.locate(id)
	if err != nil {
		return nil, err
	}

	// Zero-length read: verify existence then return empty slice.
	if length == 0 {
		if _, err := s.Length(ctx, id); err != nil {
			return nil, err
		}
		return []byte{}, nil
	}

	// S3 Range header format: "bytes=start-end" (inclusive)
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, bridge.ErrNotFound
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("s3: range read: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, length))
	if err != nil {
		return nil, fmt.Errorf("s3: reading range body: %w", err)
	}
	return data, nil
}

// locate resolves id to a bucket and full object key.
func (s *Source) locate(id bridge.ResourceID) (bucket, key string, err error) {
	raw, err := s.scheme.Resolve(id)
	if err != nil {
		return "", "", err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("s3: parse %q: %w", raw, bridge.ErrInvalidResource)
	}

	bucket = u.Host
	if bucket == "" {
		bucket = s.bucket
	}

	key, err = s.validateKey(u.Path)
	if err != nil {
		return "", "", err
	}
	return bucket, key, nil
}

// validateKey normalizes an object key and applies the source prefix.
func (s *Source) validateKey(p string) (string, error) {
	cleaned := strings.TrimPrefix(p, "/")
	if cleaned == "" {
		return "", fmt.Errorf("s3: empty key: %w", bridge.ErrInvalidResource)
	}
	for _, seg := range strings.Split(cleaned, "/") {
		if seg == ".." {
			return "", fmt.Errorf("s3: key %q escapes prefix: %w", p, bridge.ErrInvalidResource)
		}
	}
	return s.prefix + cleaned, nil
}

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "NoSuchBucket" || code == "404"
	}
	return false
}

// Ensure Source implements bridge.DataSource
var _ bridge.DataSource = (*Source)(nil)
