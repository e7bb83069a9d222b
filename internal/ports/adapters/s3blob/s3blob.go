// Package s3blob publishes clip artifacts to an S3 compatible bucket.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/forPelevin/tubebite/internal/ports"
)

var _ ports.BlobStore = (*Store)(nil)

type Options struct {
	Bucket string
	Region string
	// Endpoint targets a non-AWS service such as MinIO.
	Endpoint     string
	UsePathStyle bool
	// PublicBaseURL, when set, replaces the default virtual-hosted URL.
	PublicBaseURL string
}

type Store struct {
	client *s3.Client
	opts   Options
}

func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3blob: bucket is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &Store{client: client, opts: opts}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

// URL is the public address of key.
func (s *Store) URL(key string) string {
	return ObjectURL(s.opts, key)
}

func ObjectURL(opts Options, key string) string {
	key = strings.TrimLeft(key, "/")
	if opts.PublicBaseURL != "" {
		return strings.TrimRight(opts.PublicBaseURL, "/") + "/" + key
	}
	if opts.Endpoint != "" && opts.UsePathStyle {
		return strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", opts.Bucket, opts.Region, key)
}
