package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSSource lists and reads objects under a bucket and prefix.
type GCSSource struct {
	client   *storage.Client
	bucket   string
	prefix   string
	patterns []string
}

// NewGCSSource builds a GCSSource over bucket, restricted to objects under
// prefix (empty watches the whole bucket).
func NewGCSSource(client *storage.Client, bucket, prefix string, patterns []string) *GCSSource {
	return &GCSSource{client: client, bucket: bucket, prefix: prefix, patterns: patterns}
}

func (s *GCSSource) List(ctx context.Context) ([]Object, error) {
	var objects []Object

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("watcher: list gs://%s/%s: %w", s.bucket, s.prefix, err)
		}

		name := path.Base(attrs.Name)
		if !matchesPattern(name, s.patterns) {
			continue
		}

		objects = append(objects, Object{
			Key:         attrs.Name,
			Name:        name,
			Fingerprint: attrs.Etag,
		})
	}

	return objects, nil
}

func (s *GCSSource) Read(ctx context.Context, key string) ([]byte, string, error) {
	obj := s.client.Bucket(s.bucket).Object(key)
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("watcher: get gs://%s/%s: %w", s.bucket, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("watcher: read gs://%s/%s: %w", s.bucket, key, err)
	}

	ct := r.Attrs.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(path.Ext(key))
	}
	return data, ct, nil
}
