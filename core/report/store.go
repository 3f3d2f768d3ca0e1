// Package report downloads usage reports and turns them into tables.
package report

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"usage-cost/core/progress"
	"usage-cost/core/types"
	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
)

// ChunkSize is the buffer size used to stream report objects to disk.
const ChunkSize = 1024 * 1024

// Fetcher streams the bytes of a named object.
type Fetcher interface {
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}

// Store downloads raw reports into a directory and parses them.
type Store struct {
	fetcher   Fetcher
	dir       string
	chunkSize int
	logger    *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithChunkSize overrides the streaming buffer size.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a store that keeps raw and decompressed reports in dir.
func NewStore(fetcher Fetcher, dir string, opts ...Option) *Store {
	s := &Store{
		fetcher:   fetcher,
		dir:       dir,
		chunkSize: ChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDefault(s.logger)
	return s
}

// Download streams the object into the store directory in fixed-size chunks
// and returns the local path and the number of bytes written. The byte count
// is not checked against the listed size.
func (s *Store) Download(ctx context.Context, obj types.ObjectInfo) (string, int64, error) {
	id := progress.ReportID(obj.Name)

	body, err := s.fetcher.Get(ctx, obj.Name)
	if err != nil {
		return "", 0, errors.Transfer("failed to open report object", err).WithContext("object", obj.Name)
	}
	defer body.Close()

	dest := filepath.Join(s.dir, id)
	written, err := writeAtomic(dest, func(w io.Writer) (int64, error) {
		return io.CopyBuffer(w, &ctxReader{ctx: ctx, r: body}, make([]byte, s.chunkSize))
	})
	if err != nil {
		return "", written, errors.Transfer("failed to stream report object", err).WithContext("object", obj.Name)
	}

	s.logger.Debug("report downloaded",
		zap.String("object", obj.Name),
		zap.Int64("bytes", written),
		zap.Int64("listed_size", obj.Size),
		zap.Time("created_at", obj.CreatedAt),
	)
	return dest, written, nil
}

// Fetch downloads, decompresses and parses a usage report.
func (s *Store) Fetch(ctx context.Context, obj types.ObjectInfo) (*types.UsageReport, error) {
	raw, _, err := s.Download(ctx, obj)
	if err != nil {
		return nil, err
	}

	csvPath, err := s.decompress(raw)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, errors.Transfer("failed to open decompressed report", err).WithContext("path", csvPath)
	}
	defer f.Close()

	report, err := Parse(f)
	if err != nil {
		return nil, err
	}
	report.ID = progress.ReportID(obj.Name)
	report.ObjectName = obj.Name
	report.CreatedAt = obj.CreatedAt

	s.logger.Info("report parsed",
		zap.String("report", report.ID),
		zap.Int("rows", len(report.Rows)),
		zap.Int("columns", len(report.Header)),
	)
	return report, nil
}

// decompress gunzips a .gz report next to the archive. Other files are
// returned as they are.
func (s *Store) decompress(path string) (string, error) {
	if !strings.HasSuffix(path, ".gz") {
		return path, nil
	}

	in, err := os.Open(path)
	if err != nil {
		return "", errors.Transfer("failed to open downloaded archive", err).WithContext("path", path)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return "", errors.Transfer("corrupt report archive", err).WithContext("path", path)
	}
	defer zr.Close()

	dest := strings.TrimSuffix(path, ".gz")
	if _, err := writeAtomic(dest, func(w io.Writer) (int64, error) {
		return io.CopyBuffer(w, zr, make([]byte, s.chunkSize))
	}); err != nil {
		return "", errors.Transfer("truncated or corrupt report archive", err).WithContext("path", path)
	}
	return dest, nil
}

// writeAtomic writes to a temporary file and renames it to dest on success.
func writeAtomic(dest string, fill func(io.Writer) (int64, error)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return 0, err
	}
	n, err := fill(tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return n, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return n, err
	}
	return n, nil
}

// ctxReader stops a copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
