package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	appconfig "matchmate-chat/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const defaultPresignTTL = 24 * time.Hour

// S3Store keeps chat media in a bucket. URLs are public when PublicBase is
// configured and presigned GETs otherwise.
type S3Store struct {
	cfg        appconfig.S3Config
	s3         *s3.Client
	presign    *s3.PresignClient
	presignTTL time.Duration
}

// Enabled reports whether cfg carries enough to build an S3Store.
func Enabled(cfg appconfig.S3Config) bool {
	return cfg.Region != "" && cfg.Bucket != ""
}

func NewS3Store(ctx context.Context, cfg appconfig.S3Config) (*S3Store, error) {
	if !Enabled(cfg) {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	endpoint := ""
	if cfg.Endpoint != "" {
		parsed, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid s3 endpoint: %w", err)
		}
		endpoint = parsed.String()
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		cfg:        cfg,
		s3:         s3Client,
		presign:    s3.NewPresignClient(s3Client),
		presignTTL: defaultPresignTTL,
	}, nil
}

// Put uploads data under key and returns the URL clients should load.
func (c *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if key == "" {
		return "", errors.New("object key is required")
	}
	if contentType == "" {
		return "", errors.New("content type is required")
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if c.cfg.PublicBase != "" {
		input.ACL = types.ObjectCannedACLPublicRead
	}
	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return c.FileURL(ctx, key)
}

func (c *S3Store) FileURL(ctx context.Context, key string) (string, error) {
	if c.cfg.PublicBase != "" {
		return strings.TrimRight(c.cfg.PublicBase, "/") + "/" + key, nil
	}
	presigned, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = c.presignTTL
	})
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return presigned.URL, nil
}
