package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options holds configuration for S3.
type S3Options struct {
	Bucket        string
	Region        string
	Endpoint      string // Optional custom endpoint (MinIO, LocalStack)
	Prefix        string
	PublicBaseURL string
}

// S3 uploads receipts to a bucket.
type S3 struct {
	client  S3API
	bucket  string
	prefix  string
	baseURL string
}

// NewS3 creates an S3-backed uploader using the default AWS credential chain.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3: bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WithClient(client, opts), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client S3API, opts S3Options) *S3 {
	base := strings.TrimRight(opts.PublicBaseURL, "/")
	if base == "" {
		switch {
		case opts.Endpoint != "":
			base = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
		case opts.Region != "":
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
		default:
			base = fmt.Sprintf("https://%s.s3.amazonaws.com", opts.Bucket)
		}
	}
	prefix := strings.Trim(opts.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3{client: client, bucket: opts.Bucket, prefix: prefix, baseURL: base}
}

// Upload puts data under prefix+name and returns its public URL.
func (s *S3) Upload(ctx context.Context, data []byte, name, mime string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	key := s.prefix + strings.TrimLeft(name, "/")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put failed: %w", err)
	}
	return s.baseURL + "/" + key, nil
}
