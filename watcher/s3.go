package watcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"hccpipe.dev/artifactstore"
)

// S3Client is the subset of the AWS SDK v2 S3 client an S3Source needs. It
// embeds artifactstore.S3Client so a single *s3.Client built by bootstrap
// satisfies both the artifact store and the watcher.
type S3Client interface {
	artifactstore.S3Client
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Source lists and reads objects under a bucket and prefix.
type S3Source struct {
	client   S3Client
	bucket   string
	prefix   string
	patterns []string
}

// NewS3Source builds an S3Source over bucket, restricted to keys under
// prefix (empty watches the whole bucket).
func NewS3Source(client S3Client, bucket, prefix string, patterns []string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix, patterns: patterns}
}

func (s *S3Source) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	var token *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("watcher: list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			name := path.Base(key)
			if !matchesPattern(name, s.patterns) {
				continue
			}
			objects = append(objects, Object{
				Key:         key,
				Name:        name,
				Fingerprint: strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	return objects, nil
}

func (s *S3Source) Read(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("watcher: get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("watcher: read s3://%s/%s: %w", s.bucket, key, err)
	}

	ct := aws.ToString(out.ContentType)
	if ct == "" {
		ct = mime.TypeByExtension(path.Ext(key))
	}
	return data, ct, nil
}
