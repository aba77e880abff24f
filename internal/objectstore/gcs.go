package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
)

// GCS stores objects in the Firebase project's Cloud Storage bucket.
type GCS struct {
	bucket *gcs.BucketHandle
}

var _ Store = (*GCS)(nil)

// NewGCS opens the app's default bucket, or bucketName when set.
func NewGCS(ctx context.Context, app *firebase.App, bucketName string) (*GCS, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	var bucket *gcs.BucketHandle
	if bucketName != "" {
		bucket, err = client.Bucket(bucketName)
	} else {
		bucket, err = client.DefaultBucket()
	}
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return &GCS{bucket: bucket}, nil
}

// Put uploads data.
func (s *GCS) Put(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}

	w := s.bucket.Object(clean).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", clean, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", clean, err)
	}
	return clean, nil
}

// Get downloads an object.
func (s *GCS) Get(ctx context.Context, p string) ([]byte, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	r, err := s.bucket.Object(clean).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", clean, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", clean, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", clean, err)
	}
	return data, nil
}

// Delete removes an object.
func (s *GCS) Delete(ctx context.Context, p string) error {
	clean, err := CleanPath(p)
	if err != nil {
		return err
	}
	if err := s.bucket.Object(clean).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", clean, err)
	}
	return nil
}
