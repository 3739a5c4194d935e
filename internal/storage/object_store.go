// Package storage is the boundary to the object store holding uploaded
// comparison images.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ObjectStore defines the interface for blob upload, removal and public URL
// resolution
type ObjectStore interface {
	Upload(ctx context.Context, path string, r io.Reader, contentType string) error
	Remove(ctx context.Context, paths []string) error
	PublicURL(path string) string
	PathFromURL(url string) string
}

// GCSObjectStore implements ObjectStore on a Google Cloud Storage bucket
type GCSObjectStore struct {
	bucket     *gcs.BucketHandle
	bucketName string
}

// NewGCSObjectStore creates a new GCSObjectStore
func NewGCSObjectStore(bucket *gcs.BucketHandle, bucketName string) *GCSObjectStore {
	return &GCSObjectStore{bucket: bucket, bucketName: bucketName}
}

// Upload writes one object under path. The object only exists once the
// writer is closed without error.
func (s *GCSObjectStore) Upload(ctx context.Context, path string, r io.Reader, contentType string) error {
	w := s.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	return nil
}

// Remove deletes each object, continuing past individual failures and
// reporting the first one encountered
func (s *GCSObjectStore) Remove(ctx context.Context, paths []string) error {
	var firstErr error
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := s.bucket.Object(path).Delete(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return firstErr
}

// PublicURL resolves the publicly reachable URL for an object path
func (s *GCSObjectStore) PublicURL(path string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, path)
}

// PathFromURL strips the public prefix back off a URL, recovering the object
// path for deletion. URLs outside this bucket come back unchanged.
func (s *GCSObjectStore) PathFromURL(url string) string {
	prefix := fmt.Sprintf("https://storage.googleapis.com/%s/", s.bucketName)
	return strings.TrimPrefix(url, prefix)
}
