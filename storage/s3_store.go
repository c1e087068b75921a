// Package storage holds the S3-backed object store used for bundle assets.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"ingest-service/upload"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"go.uber.org/zap"
)

// deleteChunk is the DeleteObjects per-request key limit.
const deleteChunk = 1000

// API is the subset of the S3 client the store needs.
type API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type S3Store struct {
	client    API
	uploader  *manager.Uploader
	bucket    string
	endpoint  string
	cdnDomain string
}

func NewS3Store(client API, bucket, endpoint, cdnDomain string) *S3Store {
	return &S3Store{
		client:    client,
		uploader:  manager.NewUploader(client),
		bucket:    bucket,
		endpoint:  endpoint,
		cdnDomain: cdnDomain,
	}
}

// Put stores data under key. Failures to reach the endpoint at all are
// reported as upload.ErrTransportUnavailable.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return classify(fmt.Errorf("put %s: %w", key, err))
	}
	return nil
}

// List returns every key under prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(fmt.Errorf("list %s: %w", prefix, err))
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// Delete removes keys. Missing keys are not an error. Keys S3 refused to
// delete are reported together in the returned error.
func (s *S3Store) Delete(ctx context.Context, keys []string) error {
	var failed []string
	for i := 0; i < len(keys); i += deleteChunk {
		end := i + deleteChunk
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]s3types.ObjectIdentifier, 0, end-i)
		for _, k := range keys[i:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return classify(fmt.Errorf("delete objects: %w", err))
		}
		for _, e := range out.Errors {
			failed = append(failed, aws.ToString(e.Key))
			zap.L().Warn("Object delete refused",
				zap.String("key", aws.ToString(e.Key)),
				zap.String("code", aws.ToString(e.Code)))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("delete objects: %d keys not deleted: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// DeletePrefix removes every object under prefix and returns how many keys
// were targeted.
func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if strings.Trim(prefix, "/") == "" {
		return 0, errors.New("delete prefix: refusing to delete bucket root")
	}
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return len(keys), s.Delete(ctx, keys)
}

// PublicURL returns the address a viewer would load key from.
func (s *S3Store) PublicURL(key string) string {
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimRight(s.cdnDomain, "/"), key)
	}
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.endpoint, "/"), s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

func classify(err error) error {
	var sendErr *smithyhttp.RequestSendError
	var opErr *net.OpError
	if errors.As(err, &sendErr) || errors.As(err, &opErr) {
		return fmt.Errorf("%w: %w", upload.ErrTransportUnavailable, err)
	}
	return err
}
