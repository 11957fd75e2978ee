package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3 driver. Credentials come from the default AWS
// chain (environment, shared config, instance role).
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores objects in a single bucket, optionally under a key prefix.
type S3 struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3 returns an S3 store for cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3(client, cfg), nil
}

func newS3(client putObjectAPI, cfg S3Config) *S3 {
	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

// Driver implements Store.
func (s *S3) Driver() Driver { return DriverS3 }

// Put uploads r to bucket/prefix/key.
func (s *S3) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix != "" {
		k = s.prefix + "/" + k
	}
	input := &s3.PutObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k), Body: r}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, k, err)
	}
	return "s3://" + s.bucket + "/" + k, nil
}
