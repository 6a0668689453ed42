// Package journal records the core-index commands issued while an online
// rebuild is running, so they can be re-applied to the freshly rotated
// core index.
//
// Segments are append-only files of [length:4][crc32:4][payload] frames,
// where payload is a snappy-compressed JSON Entry.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/golang/snappy"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/internal/observability"
)

// Operations recorded in the journal.
const (
	OpUpdate     = "update"
	OpSoftDelete = "soft_delete"
)

const (
	segmentPrefix = "journal_"
	segmentSuffix = ".log"
	frameHeader   = 8

	// DefaultMaxSegmentSize is the segment rotation threshold.
	DefaultMaxSegmentSize = 16 << 20
)

// Entry is one recorded core-index command.
type Entry struct {
	LSN       uint64 `json:"lsn"`
	Op        string `json:"op"`
	Index     string `json:"index"`
	Statement string `json:"statement"`
	Timestamp int64  `json:"timestamp"`
}

// Journal is a segmented append-only log. It is safe for concurrent use.
type Journal struct {
	dir        string
	maxSegSize int64
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu         sync.Mutex
	segment    *os.File
	segmentID  uint64
	offset     int64
	currentLSN uint64
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the journal's logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(j *Journal) { j.metrics = m }
}

// Open opens the journal in dir, creating the directory if needed, and
// continues after the last entry of the newest segment.
func Open(dir string, maxSegSize int64, opts ...Option) (*Journal, error) {
	if maxSegSize <= 0 {
		maxSegSize = DefaultMaxSegmentSize
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	j := &Journal{
		dir:        dir,
		maxSegSize: maxSegSize,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(j)
	}

	segments, err := j.Segments()
	if err != nil {
		return nil, err
	}
	for _, path := range segments {
		id, _ := parseSegmentName(filepath.Base(path))
		if id > j.segmentID {
			j.segmentID = id
		}
		entries, err := j.readSegment(path)
		if err != nil {
			return nil, err
		}
		if n := len(entries); n > 0 && entries[n-1].LSN > j.currentLSN {
			j.currentLSN = entries[n-1].LSN
		}
	}
	if len(segments) == 0 {
		j.segmentID = 1
	}

	if err := j.openSegment(); err != nil {
		return nil, err
	}
	return j, nil
}

// Dir returns the journal directory.
func (j *Journal) Dir() string { return j.dir }

func segmentName(id uint64) string {
	return fmt.Sprintf("%s%016x%s", segmentPrefix, id, segmentSuffix)
}

func parseSegmentName(name string) (uint64, bool) {
	if len(name) != len(segmentPrefix)+16+len(segmentSuffix) ||
		name[:len(segmentPrefix)] != segmentPrefix ||
		name[len(name)-len(segmentSuffix):] != segmentSuffix {
		return 0, false
	}
	var id uint64
	if _, err := fmt.Sscanf(name[len(segmentPrefix):len(segmentPrefix)+16], "%016x", &id); err != nil {
		return 0, false
	}
	return id, true
}

func (j *Journal) openSegment() error {
	path := filepath.Join(j.dir, segmentName(j.segmentID))
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("journal: open segment: %w", err)
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return fmt.Errorf("journal: seek segment: %w", err)
	}
	j.segment = file
	j.offset = offset
	return nil
}

// Append writes e durably and returns its LSN. The entry's LSN and, when
// unset, its timestamp are assigned here.
func (j *Journal) Append(ctx context.Context, e *Entry) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.segment == nil {
		return 0, rterrors.NewJournalError(rterrors.CodeAppendFailed, "journal: closed", nil)
	}

	j.currentLSN++
	e.LSN = j.currentLSN
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	raw, err := json.Marshal(e)
	if err != nil {
		j.currentLSN--
		return 0, rterrors.NewJournalError(rterrors.CodeAppendFailed, "journal: encode entry", err)
	}
	payload := snappy.Encode(nil, raw)

	if err := j.writeFrame(payload); err != nil {
		j.currentLSN--
		return 0, rterrors.NewJournalError(rterrors.CodeAppendFailed, "journal: write entry", err)
	}
	j.metrics.JournalEntry(e.Op)

	if j.offset >= j.maxSegSize {
		if err := j.rotate(); err != nil {
			return e.LSN, err
		}
	}
	return e.LSN, nil
}

func (j *Journal) writeFrame(payload []byte) error {
	frame := make([]byte, frameHeader+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(payload))
	copy(frame[frameHeader:], payload)

	if _, err := j.segment.Write(frame); err != nil {
		return err
	}
	if err := j.segment.Sync(); err != nil {
		return err
	}
	j.offset += int64(len(frame))
	return nil
}

func (j *Journal) rotate() error {
	if err := j.segment.Close(); err != nil {
		return fmt.Errorf("journal: close segment: %w", err)
	}
	j.segmentID++
	return j.openSegment()
}

// Seal closes the active segment, when it holds entries, and starts a new
// one. It returns the path of the sealed segment or "" when there was
// nothing to seal.
func (j *Journal) Seal() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.segment == nil {
		return "", rterrors.NewJournalError(rterrors.CodeAppendFailed, "journal: closed", nil)
	}
	if j.offset == 0 {
		return "", nil
	}
	sealed := j.segment.Name()
	if err := j.rotate(); err != nil {
		return "", err
	}
	return sealed, nil
}

// CurrentLSN returns the LSN of the last appended entry.
func (j *Journal) CurrentLSN() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.currentLSN
}

// Segments lists the segment files in creation order.
func (j *Journal) Segments() ([]string, error) {
	files, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read directory: %w", err)
	}
	var out []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if _, ok := parseSegmentName(f.Name()); ok {
			out = append(out, filepath.Join(j.dir, f.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close syncs and closes the active segment.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.segment == nil {
		return nil
	}
	if err := j.segment.Sync(); err != nil {
		return fmt.Errorf("journal: sync on close: %w", err)
	}
	if err := j.segment.Close(); err != nil {
		return fmt.Errorf("journal: close segment: %w", err)
	}
	j.segment = nil
	return nil
}

// ReadSegment decodes every intact entry of a segment file. Frames whose
// checksum does not match are skipped; a truncated tail ends the read.
func ReadSegment(path string) ([]*Entry, error) {
	return readSegment(path, nil)
}

func (j *Journal) readSegment(path string) ([]*Entry, error) {
	return readSegment(path, j.logger)
}

func readSegment(path string, logger *slog.Logger) ([]*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rterrors.NewJournalError(rterrors.CodeReplayFailed, "journal: read segment "+path, err)
	}

	var entries []*Entry
	for off := 0; off+frameHeader <= len(data); {
		length := int(binary.LittleEndian.Uint32(data[off : off+4]))
		crc := binary.LittleEndian.Uint32(data[off+4 : off+8])
		start := off + frameHeader
		if start+length > len(data) {
			break
		}
		payload := data[start : start+length]
		next := start + length

		if crc32.ChecksumIEEE(payload) != crc {
			warn(logger, "checksum mismatch, skipping entry", path, off)
			off = next
			continue
		}
		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			warn(logger, "undecodable entry, skipping", path, off)
			off = next
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			warn(logger, "malformed entry, skipping", path, off)
			off = next
			continue
		}
		entries = append(entries, &e)
		off = next
	}
	return entries, nil
}

func warn(logger *slog.Logger, msg, path string, offset int) {
	if logger != nil {
		logger.Warn("journal: "+msg, "segment", path, "offset", offset)
	}
}
