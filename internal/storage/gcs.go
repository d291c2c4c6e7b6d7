package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

// GCSStore stages audio in Google Cloud Storage.
type GCSStore struct {
	service   *gcs.Service
	projectID string
	location  string
}

// NewGCSStore creates a Cloud Storage client. Buckets are created in projectID at location
// (multi-region "US" when empty).
func NewGCSStore(ctx context.Context, projectID, location string, opts ...option.ClientOption) (*GCSStore, error) {
	srv, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Cloud Storage service: %w", err)
	}
	if location == "" {
		location = "US"
	}
	return &GCSStore{
		service:   srv,
		projectID: projectID,
		location:  location,
	}, nil
}

func (g *GCSStore) Scheme() string { return "gs" }

// CreateBucket creates a bucket. Cloud Storage reports a taken name as 409 Conflict.
func (g *GCSStore) CreateBucket(ctx context.Context, name string) error {
	if g.projectID == "" {
		return fmt.Errorf("create gcs bucket %s: google project id is not configured", name)
	}
	bucket := &gcs.Bucket{
		Name:     name,
		Location: g.location,
	}
	_, err := g.service.Buckets.Insert(g.projectID, bucket).Context(ctx).Do()
	if err != nil {
		if apiStatus(err) == http.StatusConflict {
			return ErrBucketExists
		}
		return fmt.Errorf("create gcs bucket %s: %w", name, err)
	}
	return nil
}

// PutObject uploads data as bucket/key.
func (g *GCSStore) PutObject(ctx context.Context, bucket, key, contentType string, data []byte) error {
	obj := &gcs.Object{
		Name:        key,
		ContentType: contentType,
	}
	_, err := g.service.Objects.Insert(bucket, obj).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("put gcs object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// DeleteObject removes bucket/key. An object that is already gone is not an error.
func (g *GCSStore) DeleteObject(ctx context.Context, bucket, key string) error {
	err := g.service.Objects.Delete(bucket, key).Context(ctx).Do()
	if err != nil && apiStatus(err) != http.StatusNotFound {
		return fmt.Errorf("delete gcs object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
