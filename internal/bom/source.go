package bom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"synctree/internal/config"
	"synctree/internal/domain"
)

var (
	// ErrSourceNotFound is returned when a BOM file or object does not exist.
	ErrSourceNotFound = errors.New("bom: source not found")
	// ErrSourceNotAllowed is returned by ConfineSource for local paths outside the BOM directory.
	ErrSourceNotAllowed = errors.New("bom: source not allowed")
)

const s3Scheme = "s3://"

// Open opens a BOM source: "s3://bucket/key" objects through S3, anything else as a local path.
func Open(ctx context.Context, src string, cfg config.S3Config) (io.ReadCloser, error) {
	if !strings.HasPrefix(src, s3Scheme) {
		f, err := os.Open(src)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, src)
			}
			return nil, fmt.Errorf("bom: open %s: %w", src, err)
		}
		return f, nil
	}

	bucket, key, err := parseS3URI(src)
	if err != nil {
		return nil, err
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return nil, fmt.Errorf("bom: get %s: %w", src, err)
	}
	return out.Body, nil
}

// ReadSource opens src and parses it with the delimiter implied by its name.
func ReadSource(ctx context.Context, src string, cfg config.S3Config) ([]domain.BomRow, []domain.SkippedRow, error) {
	rc, err := Open(ctx, src, cfg)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	return Read(rc, DelimiterFor(src))
}

// ConfineSource restricts src to s3:// objects or files under dir and returns the source
// to open. Relative paths are taken relative to dir. An empty dir permits s3:// only.
// Existence is not checked, so a rejected path reveals nothing about the filesystem.
func ConfineSource(dir, src string) (string, error) {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, s3Scheme) {
		return src, nil
	}
	if dir == "" {
		return "", fmt.Errorf("%w: local BOM files are disabled, use s3://bucket/key", ErrSourceNotAllowed)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("bom: resolve BOM directory: %w", err)
	}
	p := src
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !within(root, p) {
		return "", fmt.Errorf("%w: %q is outside the BOM directory", ErrSourceNotAllowed, src)
	}

	// Symlinks inside dir must not lead out of it either.
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		realRoot, rootErr := filepath.EvalSymlinks(root)
		if rootErr != nil || !within(realRoot, resolved) {
			return "", fmt.Errorf("%w: %q is outside the BOM directory", ErrSourceNotAllowed, src)
		}
	}
	return p, nil
}

// within reports whether p names a file strictly below root.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func parseS3URI(src string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(src, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("bom: invalid s3 uri %q, want s3://bucket/key", src)
	}
	return bucket, key, nil
}

// newS3Client uses static credentials when configured and the default chain otherwise.
// A custom endpoint switches to path-style addressing for MinIO compatibility.
func newS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bom: load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
