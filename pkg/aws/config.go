package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Settings selects the region, credentials and optional LocalStack endpoint.
type Settings struct {
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	S3Endpoint string
}

// LoadAWSConfig loads AWS config. When Endpoint is set every client targets
// it instead of AWS, which is how LocalStack is used in development.
func LoadAWSConfig(ctx context.Context, s Settings) (sdkaws.Config, error) {
	opts := []func(*awscfg.LoadOptions) error{}
	if s.Region != "" {
		opts = append(opts, awscfg.WithRegion(s.Region))
	}
	if s.AccessKey != "" || s.SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, ""),
		))
	}
	if s.Endpoint != "" {
		endpoint, region := s.Endpoint, s.Region
		opts = append(opts, awscfg.WithEndpointResolverWithOptions(
			sdkaws.EndpointResolverWithOptionsFunc(func(service, r string, options ...interface{}) (sdkaws.Endpoint, error) {
				sr := region
				if sr == "" {
					sr = r
				}
				return sdkaws.Endpoint{URL: endpoint, SigningRegion: sr, HostnameImmutable: true}, nil
			}),
		))
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load aws config: %w", err)
	}
	if s.Endpoint != "" {
		zap.L().Info("AWS custom endpoint configured", zap.String("endpoint", s.Endpoint), zap.String("region", cfg.Region))
	}
	return cfg, nil
}

// NewS3Client builds a path-style S3 client, optionally pinned to a
// dedicated S3 endpoint.
func NewS3Client(cfg sdkaws.Config, s Settings) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if s.S3Endpoint != "" {
			o.BaseEndpoint = sdkaws.String(s.S3Endpoint)
		}
	})
}

func NewDynamoClient(cfg sdkaws.Config, s Settings) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = sdkaws.String(s.Endpoint)
		}
	})
}
