package gcs

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Storage stores submission images in a GCS bucket and makes each object
// publicly readable, mirroring how the rest of the platform serves media.
type Storage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

func New(ctx context.Context, bucketName string, opts ...option.ClientOption) (*Storage, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Storage{
		client: client,
		bucket: client.Bucket(bucketName),
		name:   bucketName,
	}, nil
}

func (s *Storage) Save(ctx context.Context, path, contentType string, data []byte, metadata map[string]string) (string, error) {
	object := s.bucket.Object(path)

	writer := object.NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = metadata
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("write object %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close object writer %s: %w", path, err)
	}

	if err := object.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return "", fmt.Errorf("make object public %s: %w", path, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.name, path), nil
}

func (s *Storage) Delete(ctx context.Context, path string) error {
	err := s.bucket.Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	return nil
}

func (s *Storage) DeletePrefix(ctx context.Context, prefix string) error {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list objects under %s: %w", prefix, err)
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("delete object %s: %w", attrs.Name, err)
		}
	}
}

func (s *Storage) Close() error {
	return s.client.Close()
}
