// Package objectstore lists and reads usage report objects through the
// S3-compatible API of the object storage service.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"usage-cost/core/types"
	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
)

// maxKeys is the page size of a listing request.
const maxKeys = 1000

// Config describes the bucket holding usage reports.
type Config struct {
	// Endpoint is the S3-compatible endpoint; when empty it is derived from
	// Namespace and Region
	Endpoint string `hcl:"endpoint,optional" json:"endpoint"`

	Region    string `hcl:"region,optional" json:"region"`
	Namespace string `hcl:"namespace,optional" json:"namespace"`
	Bucket    string `hcl:"bucket,optional" json:"bucket"`

	// Prefix limits listing to usage reports
	Prefix string `hcl:"prefix,optional" json:"prefix"`

	// Profile selects a shared credentials profile; empty uses the default chain
	Profile string `hcl:"profile,optional" json:"profile"`

	// AccessKeyID and SecretAccessKey override the credential chain
	AccessKeyID     string `hcl:"access_key_id,optional" json:"-"`
	SecretAccessKey string `hcl:"secret_access_key,optional" json:"-"`
}

// ResolvedEndpoint returns Endpoint, or the compatibility endpoint of the
// tenancy namespace in Region. It is empty when neither is configured.
func (c Config) ResolvedEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if c.Namespace == "" || c.Region == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.compat.objectstorage.%s.oraclecloud.com", c.Namespace, c.Region)
}

// Store reads one bucket.
type Store struct {
	s3     s3iface.S3API
	bucket string
	prefix string
	logger *zap.Logger
}

// New creates a store with an S3 client for cfg.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithS3ForcePathStyle(true)
	if endpoint := cfg.ResolvedEndpoint(); endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(endpoint)
	}
	if cfg.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		Profile:           cfg.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "failed to create object storage session", err)
	}
	return NewWithClient(s3.New(sess), cfg.Bucket, cfg.Prefix, logger), nil
}

// NewWithClient creates a store around an existing client.
func NewWithClient(client s3iface.S3API, bucket, prefix string, logger *zap.Logger) *Store {
	return &Store{
		s3:     client,
		bucket: bucket,
		prefix: prefix,
		logger: logging.OrDefault(logger),
	}
}

// List returns every object under the prefix whose name sorts after cursor,
// in name order. An empty cursor lists from the start.
func (s *Store) List(ctx context.Context, cursor string) ([]types.ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int64(maxKeys),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}
	if cursor != "" {
		input.StartAfter = aws.String(cursor)
	}

	var objects []types.ObjectInfo
	pages := 0
	err := s.s3.ListObjectsV2PagesWithContext(ctx, input, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		pages++
		for _, obj := range out.Contents {
			key := aws.StringValue(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, types.ObjectInfo{
				Name:      key,
				Size:      aws.Int64Value(obj.Size),
				CreatedAt: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, errors.Transfer(fmt.Sprintf("failed to list s3://%s/%s", s.bucket, s.prefix), err).
			WithContext("cursor", cursor)
	}

	s.logger.Debug("objects listed",
		zap.String("bucket", s.bucket),
		zap.String("cursor", cursor),
		zap.Int("pages", pages),
		zap.Int("objects", len(objects)),
	)
	return objects, nil
}

// Get opens the object body. The caller closes it.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, errors.Transfer(fmt.Sprintf("failed to get s3://%s/%s", s.bucket, name), err)
	}
	return out.Body, nil
}
