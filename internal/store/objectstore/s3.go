package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
	PublicURL string
}

type S3Store struct {
	client *s3.Client
	opts   S3Options
}

func NewS3(opts S3Options) (*S3Store, error) {
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, errors.New("objectstore: S3 credentials not set (S3_ACCESS_KEY, S3_SECRET_KEY)")
	}
	// buckets with dots break virtual-host TLS
	if strings.Contains(opts.Bucket, ".") {
		opts.PathStyle = true
	}

	cfg := aws.Config{
		Region:      opts.Region,
		Credentials: credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	log.Info().
		Str("bucket", opts.Bucket).
		Str("region", opts.Region).
		Str("endpoint", opts.Endpoint).
		Msg("S3 object store initialized")
	return &S3Store{client: client, opts: opts}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:       aws.String(s.opts.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=3600"),
	}
	if strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "audio/") {
		input.ContentDisposition = aws.String("inline")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		log.Error().Err(err).Str("key", key).Str("bucket", s.opts.Bucket).Int("size", len(data)).Msg("S3 upload failed")
		return "", fmt.Errorf("upload to S3: %w", err)
	}
	log.Debug().Str("key", key).Int("size", len(data)).Msg("S3 upload ok")
	return s.PublicURL(key), nil
}

func (s *S3Store) PublicURL(key string) string {
	if s.opts.PublicURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.opts.PublicURL, "/"), s.opts.Bucket, key)
	}
	endpoint := strings.TrimRight(s.opts.Endpoint, "/")
	if endpoint == "" || strings.Contains(endpoint, "amazonaws.com") {
		if s.opts.PathStyle {
			return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", s.opts.Region, s.opts.Bucket, key)
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, key)
	}
	if s.opts.PathStyle {
		return fmt.Sprintf("%s/%s/%s", endpoint, s.opts.Bucket, key)
	}
	scheme, host, ok := strings.Cut(endpoint, "://")
	if !ok {
		return fmt.Sprintf("https://%s.%s/%s", s.opts.Bucket, endpoint, key)
	}
	return fmt.Sprintf("%s://%s.%s/%s", scheme, s.opts.Bucket, host, key)
}
