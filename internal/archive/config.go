// Package archive writes terminal delivery failures to S3/MinIO as
// Parquet objects, giving operators a queryable record of what the
// destination rejected and when.
package archive

// Config holds failure archive configuration.
type Config struct {
	// Enabled turns the archive on. Off by default; failures are still
	// notified and logged either way.
	Enabled bool `env:"ARCHIVE_ENABLED" envDefault:"false"`

	// S3 configuration
	S3 S3Config `envPrefix:"ARCHIVE_S3_"`

	// Compression is the Parquet compression codec (snappy, gzip,
	// zstd, none)
	Compression string `env:"ARCHIVE_COMPRESSION" envDefault:"snappy"`
}

// S3Config holds S3/MinIO configuration.
type S3Config struct {
	// Endpoint is the S3 endpoint URL (e.g., "http://localhost:9000" for MinIO)
	Endpoint string `env:"ENDPOINT" envDefault:"http://localhost:9000"`

	// Region is the AWS region
	Region string `env:"REGION" envDefault:"us-east-1"`

	// Bucket is the S3 bucket name
	Bucket string `env:"BUCKET" envDefault:"feedbridge-failures"`

	// AccessKeyID is the AWS access key ID
	AccessKeyID string `env:"ACCESS_KEY_ID" envDefault:"minioadmin"`

	// SecretAccessKey is the AWS secret access key
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" envDefault:"minioadmin"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `env:"USE_PATH_STYLE" envDefault:"true"`

	// Prefix is the key prefix for all objects
	Prefix string `env:"PREFIX" envDefault:"failures"`
}
