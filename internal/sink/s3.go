package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	appconfig "github.com/report-harvester/internal/config"
	apperrors "github.com/report-harvester/internal/errors"
)

// S3Sink stores artifacts in an S3-compatible bucket. PutObject is atomic on
// the service side, which gives the all-or-nothing write the backfill driver
// depends on.
type S3Sink struct {
	client *s3.Client
	bucket string
}

// NewS3Sink creates an S3 sink. A custom endpoint enables MinIO and other
// S3-compatible services.
func NewS3Sink(ctx context.Context, cfg *appconfig.S3Config) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}
	if cfg.AccessKey != "" {
		accessKey, secretKey := cfg.AccessKey, cfg.SecretKey
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for MinIO and other S3-compatible services
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &S3Sink{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Exists checks artifact presence with a HEAD request.
func (s *S3Sink) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, apperrors.NewSinkError(name, err)
}

// Write uploads the artifact with a single PutObject.
func (s *S3Sink) Write(ctx context.Context, name string, data []byte) error {
	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(name, ".tsv"):
		contentType = "text/tab-separated-values"
	case strings.HasSuffix(name, ".json"):
		contentType = "application/json"
	case strings.HasSuffix(name, ".csv"):
		contentType = "text/csv"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperrors.NewSinkError(name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}
