package artifactstore

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"hccpipe.dev/clinical"
)

// S3Client is the subset of the AWS SDK v2 S3 client the store needs,
// narrowed to an interface so tests inject a mock instead of a live bucket.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store stores blobs in a single AWS S3 bucket.
type S3Store struct {
	client S3Client
	bucket string
}

// NewS3Store wraps an already-configured S3 client (built from aws-sdk-go-v2
// config.LoadDefaultConfig by the caller).
func NewS3Store(client S3Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Kind() clinical.StorageKind { return clinical.StorageS3 }

func (s *S3Store) Store(ctx context.Context, data []byte, filename, contentType string) (clinical.Storage, error) {
	key := NewKey(filename)

	// The multipart-safe uploader handles both small and large artifacts
	// uniformly; it needs only PutObject, which S3Client already requires.
	uploader := manager.NewUploader(s.client.(manager.UploadAPIClient))
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytesReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return clinical.Storage{}, err
	}
	return clinical.Storage{Kind: clinical.StorageS3, Path: key}, nil
}

func (s *S3Store) Get(ctx context.Context, loc clinical.Storage) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(loc.Path),
	})
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}

	ct := ""
	if out.ContentType != nil {
		ct = *out.ContentType
	}
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(loc.Path))
	}
	return data, ct, nil
}

func (s *S3Store) Delete(ctx context.Context, loc clinical.Storage) (bool, error) {
	// DeleteObject succeeds for a missing key, so check existence first to
	// report "nothing deleted" as false.
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(loc.Path),
	}); err != nil {
		return false, nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(loc.Path),
	})
	if err != nil {
		// S3/GCS delete failures are swallowed and reported as (false, nil),
		// never returned as errors (open question resolved in SPEC_FULL.md §9).
		return false, nil
	}
	return true, nil
}
