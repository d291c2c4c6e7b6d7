package storage

import (
	"context"
	"errors"
)

//go:generate mockgen -source=store.go -destination=mock_store_test.go -package=storage

// ErrBucketExists is returned by CreateBucket when the name is already taken.
var ErrBucketExists = errors.New("bucket already exists")

// ObjectStore is the remote object storage a provider reads staged audio from.
type ObjectStore interface {
	// Scheme is the URI scheme providers expect ("s3", "gs").
	Scheme() string
	CreateBucket(ctx context.Context, name string) error
	PutObject(ctx context.Context, bucket, key, contentType string, data []byte) error
	DeleteObject(ctx context.Context, bucket, key string) error
}
