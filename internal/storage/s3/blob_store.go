// Package s3 provides a BlobStore backed by Amazon S3 or an S3-compatible service.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/wikitide/sitemapindex/internal/storage"
)

// Config captures the parameters required to reach the bucket.
type Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the AWS endpoint for S3-compatible services.
	Endpoint     string
	UsePathStyle bool
}

// putClient is the subset of the S3 client used by the store.
type putClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BlobStore writes objects to a single bucket.
type BlobStore struct {
	client putClient
	creds  aws.CredentialsProvider
	bucket string
}

// credentialCodes are S3 error codes that mean the caller's identity was rejected.
var credentialCodes = map[string]struct{}{
	"InvalidAccessKeyId":    {},
	"SignatureDoesNotMatch": {},
	"InvalidToken":          {},
	"ExpiredToken":          {},
	"TokenRefreshRequired":  {},
}

// New loads AWS configuration and builds a store. When either key is supplied they are
// used as static credentials; otherwise the default provider chain applies.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	opts := []func(*awscfg.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, awscfg.WithCredentialsProvider(creds))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Most S3-compatible services reject the newer default checksum headers.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	return &BlobStore{
		client: client,
		creds:  awsCfg.Credentials,
		bucket: cfg.Bucket,
	}, nil
}

// PutObject resolves credentials, uploads the object and returns an s3:// URI.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("path is required")
	}
	if s.creds == nil {
		return "", fmt.Errorf("%w: no credential provider configured", storage.ErrCredentials)
	}
	if _, err := s.creds.Retrieve(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", storage.ErrCredentials, err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object body: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", classify(fmt.Errorf("put object s3://%s/%s: %w", s.bucket, key, err))
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := credentialCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %w", storage.ErrCredentials, err)
		}
	}
	return err
}
