package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// memS3 is an in-memory bucket. failPuts makes that many PutObject calls
// fail before one succeeds.
type memS3 struct {
	objects  map[string][]byte
	meta     map[string]map[string]string
	failPuts int
	puts     int
}

func newMemS3() *memS3 {
	return &memS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (m *memS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.puts++
	if m.failPuts > 0 {
		m.failPuts--
		return nil, errors.New("503 slow down")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	m.objects[key] = data
	m.meta[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := m.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *memS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func newTestS3(client S3API) *S3Storage {
	s := NewS3StorageWithClient(client, "archive")
	s.retry.base = time.Millisecond
	return s
}

func TestS3Storage_RoundTrip(t *testing.T) {
	mem := newMemS3()
	s := newTestS3(mem)
	ctx := context.Background()

	dir := t.TempDir()
	src := writeSegment(t, dir, "journal_0000000000000001.log", "frames")
	if err := s.Upload(ctx, src, "journal/journal_0000000000000001.log"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if got := mem.meta["journal/journal_0000000000000001.log"][segmentMetaKey]; got != "journal_0000000000000001.log" {
		t.Errorf("segment metadata = %q", got)
	}

	ok, err := s.Exists(ctx, "journal/journal_0000000000000001.log")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	dst := filepath.Join(dir, "restored", "seg.log")
	if err := s.Download(ctx, "journal/journal_0000000000000001.log", dst); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "frames" {
		t.Errorf("downloaded %q, %v", data, err)
	}

	if err := s.Delete(ctx, "journal/journal_0000000000000001.log"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	ok, err = s.Exists(ctx, "journal/journal_0000000000000001.log")
	if err != nil || ok {
		t.Errorf("Exists after delete = %v, %v", ok, err)
	}
}

func TestS3Storage_UploadRetries(t *testing.T) {
	mem := newMemS3()
	mem.failPuts = 2
	s := newTestS3(mem)

	src := writeSegment(t, t.TempDir(), "seg.log", "payload")
	if err := s.Upload(context.Background(), src, "seg.log"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if mem.puts != 3 {
		t.Errorf("expected 3 attempts, got %d", mem.puts)
	}
	if string(mem.objects["seg.log"]) != "payload" {
		t.Errorf("retried upload stored %q", mem.objects["seg.log"])
	}
}

func TestS3Storage_UploadGivesUp(t *testing.T) {
	mem := newMemS3()
	mem.failPuts = 10
	s := newTestS3(mem)

	src := writeSegment(t, t.TempDir(), "seg.log", "payload")
	err := s.Upload(context.Background(), src, "seg.log")
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("expected ErrUploadFailed, got %v", err)
	}
	if mem.puts != 4 {
		t.Errorf("expected 4 attempts, got %d", mem.puts)
	}
}

func TestS3Storage_DownloadNotFound(t *testing.T) {
	s := newTestS3(newMemS3())
	err := s.Download(context.Background(), "missing", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestS3Storage_ListObjectsSorted(t *testing.T) {
	mem := newMemS3()
	mem.objects["journal/b"] = nil
	mem.objects["journal/a"] = nil
	mem.objects["other/c"] = nil
	s := newTestS3(mem)

	got, err := s.ListObjects(context.Background(), "journal/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(got) != 2 || got[0] != "journal/a" || got[1] != "journal/b" {
		t.Errorf("ListObjects = %v", got)
	}
}
