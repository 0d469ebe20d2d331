// Package storage defines the common interfaces of the storage adapters used by the
// export: named connections to a local directory or a GCS bucket behind one API.
package storage

import (
	"context"
	"io"
)

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload uploads data to the specified bucket and object name.
	// 'data' is the stream of data to upload. 'contentType' is the MIME type of the data.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download downloads data from the specified bucket and object name.
	// It returns a ReadCloser which must be closed by the caller after use.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the specified object from the bucket.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is one named storage connection.
type StorageConnection interface {
	StorageExecutor

	// Close releases the connection.
	Close() error
	// Type returns the storage type ("local", "gcs").
	Type() string
	// Name returns the configured connection name.
	Name() string
}

// StorageProvider creates and caches the connections of one storage type.
type StorageProvider interface {
	// GetConnection retrieves the connection configured under name.
	GetConnection(ctx context.Context, name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type this provider handles.
	Type() string
}

// ProviderGroup is the fx value group storage providers are collected in.
const ProviderGroup = "storage_providers"
