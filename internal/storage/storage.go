// Package storage archives sealed replay-journal segments in object storage.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage is the subset of object-store operations the journal
// archive needs. Implementations are the local filesystem and S3.
type ObjectStorage interface {
	// Upload copies the file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to localPath.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under prefix in lexical order.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures an archive backend.
type Config struct {
	// Backend is "local", "s3" or empty for no archive.
	Backend string `json:"backend" yaml:"backend"`

	// Path is the base directory of the local backend.
	Path string `json:"path" yaml:"path"`

	// Bucket is the S3 bucket name.
	Bucket string `json:"bucket" yaml:"bucket"`

	// Prefix is prepended to every archived object path.
	Prefix string `json:"prefix" yaml:"prefix"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// Open builds the backend described by cfg. It returns nil storage when no
// backend is configured.
func Open(ctx context.Context, cfg Config) (ObjectStorage, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "local":
		s, err := NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		s, err := NewS3Storage(ctx, cfg.Bucket, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New("storage: unknown backend " + cfg.Backend)
	}
}
