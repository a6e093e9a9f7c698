package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "channel-relay/internal/config"
)

// FallbackPublicDomain is used when no public domain is configured.
const FallbackPublicDomain = "https://media.relay-cdn.app"

// ObjectStore uploads media to durable storage and returns public URLs.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, name, contentType string) (string, error)
}

// S3Store stores media in an S3-compatible bucket.
type S3Store struct {
	client       *s3.Client
	bucket       string
	publicDomain string
	now          func() time.Time
}

// NewS3Store builds the store from app config. Missing bucket or endpoint
// credentials are a fatal configuration error, not a retryable one.
func NewS3Store(ctx context.Context, cfg *appconfig.Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.StorageBucket) == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}
	if cfg.StorageAccessKey == "" || cfg.StorageSecretKey == "" {
		return nil, fmt.Errorf("storage credentials are not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.StorageRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.StorageEndpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	domain := strings.TrimSuffix(cfg.PublicDomain, "/")
	if domain == "" {
		domain = FallbackPublicDomain
	}

	return &S3Store{
		client:       client,
		bucket:       cfg.StorageBucket,
		publicDomain: domain,
		now:          time.Now,
	}, nil
}

// Upload PUTs the object under a `${epochMillis}-${name}` key, which avoids
// collisions without any coordination, and returns the public URL. The
// upload is a single PUT, not resumable.
func (s *S3Store) Upload(ctx context.Context, data []byte, name, contentType string) (string, error) {
	key := fmt.Sprintf("%d-%s", s.now().UnixMilli(), name)

	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	return s.publicDomain + "/" + key, nil
}
