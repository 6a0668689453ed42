package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// segmentMetaKey carries the journal segment file name on archived objects.
const segmentMetaKey = "rtsync-segment"

// S3API is the subset of the S3 client the archive calls.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds configuration for the S3 backend.
type S3Config struct {
	// Region is the AWS region of the bucket.
	Region string `json:"region" yaml:"region"`

	// Endpoint points at an S3 compatible store such as MinIO.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`

	// Attempts bounds tries per request; 0 means 4.
	Attempts int `json:"attempts" yaml:"attempts"`
}

// S3Storage archives journal segments in an S3 bucket.
type S3Storage struct {
	client S3API
	bucket string
	retry  retryPolicy
}

// NewS3Storage creates an S3 backend from the default AWS credential chain.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	s := NewS3StorageWithClient(client, bucket)
	if cfg.Attempts > 0 {
		s.retry.attempts = cfg.Attempts
	}
	return s, nil
}

// NewS3StorageWithClient creates an S3 backend over an existing client.
func NewS3StorageWithClient(client S3API, bucket string) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: bucket,
		retry:  retryPolicy{attempts: 4, base: 100 * time.Millisecond},
	}
}

// Upload stores the segment at localPath. S3 verifies the body against a
// CRC32 checksum computed by the SDK.
func (s *S3Storage) Upload(ctx context.Context, localPath, objectPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer f.Close()

	err = s.retry.do(ctx, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return permanent(err)
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:            aws.String(s.bucket),
			Key:               aws.String(objectPath),
			Body:              f,
			ContentType:       aws.String("application/octet-stream"),
			ChecksumAlgorithm: types.ChecksumAlgorithmCrc32,
			Metadata:          map[string]string{segmentMetaKey: filepath.Base(localPath)},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUploadFailed, objectPath, err)
	}
	return nil
}

// Download fetches objectPath into localPath.
func (s *S3Storage) Download(ctx context.Context, objectPath, localPath string) error {
	var body io.ReadCloser
	err := s.retry.do(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return permanent(ErrObjectNotFound)
		}
		if err != nil {
			return err
		}
		body = out.Body
		return nil
	})
	if errors.Is(err, ErrObjectNotFound) {
		return ErrObjectNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, objectPath, err)
	}
	defer body.Close()

	if err := writeFileAtomic(localPath, body); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return nil
}

// Delete removes objectPath.
func (s *S3Storage) Delete(ctx context.Context, objectPath string) error {
	err := s.retry.do(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeleteFailed, objectPath, err)
	}
	return nil
}

// Exists reports whether objectPath is archived.
func (s *S3Storage) Exists(ctx context.Context, objectPath string) (bool, error) {
	found := false
	err := s.retry.do(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		var notFound *types.NotFound
		switch {
		case errors.As(err, &notFound):
			found = false
			return nil
		case err != nil:
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// ListObjects lists the keys under prefix in lexical order.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", path.Join(s.bucket, prefix), err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// retryPolicy retries a request with exponential backoff.
type retryPolicy struct {
	attempts int
	base     time.Duration
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// permanent marks err as not worth another attempt.
func permanent(err error) error { return permanentError{err: err} }

func (r retryPolicy) do(ctx context.Context, op func() error) error {
	var err error
	delay := r.base
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = op()
		var stop permanentError
		if err == nil {
			return nil
		}
		if errors.As(err, &stop) {
			return stop.err
		}
		if attempt >= r.attempts {
			return err
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}
