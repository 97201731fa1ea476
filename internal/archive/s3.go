package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Client handles S3/MinIO operations for the failure archive.
type S3Client struct {
	client *s3.Client
	config S3Config
	logger *slog.Logger
}

// NewS3Client creates a new S3 client.
func NewS3Client(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info("archive S3 client created",
		"endpoint", cfg.Endpoint,
		"bucket", cfg.Bucket,
		"region", cfg.Region,
	)

	return &S3Client{
		client: client,
		config: cfg,
		logger: logger.With("component", "archive-s3"),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.Bucket),
	})
	if err == nil {
		c.logger.Debug("bucket exists", "bucket", c.config.Bucket)
		return nil
	}

	c.logger.Info("creating bucket", "bucket", c.config.Bucket)
	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// Upload uploads a Parquet object.
func (c *S3Client) Upload(ctx context.Context, key string, data []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-parquet"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	c.logger.Debug("uploaded to S3",
		"key", key,
		"size_bytes", len(data),
	)

	return nil
}

// GenerateKey generates the object key for one connector's failures at
// the given time.
// Format: {prefix}/connector_id={id}/year={y}/month={m}/day={d}/failures_{uuid}.parquet.
func (c *S3Client) GenerateKey(connectorID string, at time.Time) string {
	return fmt.Sprintf(
		"%s/connector_id=%s/year=%d/month=%02d/day=%02d/failures_%s.parquet",
		c.config.Prefix,
		connectorID,
		at.Year(), int(at.Month()), at.Day(),
		uuid.New().String(),
	)
}
