package ingestor

import (
	"bufio"
	"context"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-errors/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding/charmap"
)

// Encoding names a text encoding a log file may be decoded with.
type Encoding string

const (
	UTF8   Encoding = "utf-8"
	Latin1 Encoding = "latin-1"
)

// DefaultEncodings is the decode priority: UTF-8 first, then a permissive
// single-byte fallback.
var DefaultEncodings = []Encoding{UTF8, Latin1}

const defaultSniffBytes = 512

var (
	// ErrBinary marks a file whose leading block does not look like text.
	ErrBinary = errors.New("binary content")
	// ErrUndecodable marks a file no configured encoding can decode.
	ErrUndecodable = errors.New("no configured encoding decodes the file")
)

// LogLine represents a single raw log line read from input.
type LogLine struct {
	Path       string
	LineNumber int
	Content    string
}

// Reader opens log files, transparently decompressing .gz and .xz.
type Reader struct {
	Encodings []Encoding
	// Materialize writes the decompressed content of a .gz/.xz file next
	// to it, minus the extension, when no such sibling exists yet.
	Materialize bool
	SniffBytes  int
}

// NewReader returns a Reader with the default encodings and materialization on.
func NewReader() *Reader {
	return &Reader{
		Encodings:   DefaultEncodings,
		Materialize: true,
		SniffBytes:  defaultSniffBytes,
	}
}

// File is an opened log file whose encoding has been settled.
type File struct {
	Path     string
	Encoding Encoding
}

// Open prepares path for reading: it materializes compressed content if
// configured, rejects binary content and picks the first encoding that
// decodes the whole file.
func (r *Reader) Open(path string) (*File, error) {
	if r.Materialize && compressed(path) {
		if err := materialize(path); err != nil {
			slog.Warn("could not materialize decompressed copy", "path", path, "error", err)
		}
	}

	enc, err := r.detectEncoding(path)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Encoding: enc}, nil
}

// Lines yields every line of the file decoded with its settled encoding.
// The underlying handle is closed when iteration finishes or stops early.
func (f *File) Lines(ctx context.Context) iter.Seq2[*LogLine, error] {
	return func(yield func(*LogLine, error) bool) {
		rc, err := openStream(f.Path)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = rc.Close() }()

		var src io.Reader = rc
		if f.Encoding == Latin1 {
			src = charmap.ISO8859_1.NewDecoder().Reader(rc)
		}

		// Lines have no length limit; an overlong line is read whole.
		br := bufio.NewReaderSize(src, 64*1024)
		lineNum := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			text, rerr := br.ReadString('\n')
			if rerr != nil && !errors.Is(rerr, io.EOF) {
				yield(nil, errors.Errorf("read %s: %w", f.Path, rerr))
				return
			}
			if text == "" && rerr != nil {
				return
			}
			lineNum++
			text = strings.TrimSuffix(strings.TrimSuffix(text, "\n"), "\r")
			if !yield(&LogLine{Path: f.Path, LineNumber: lineNum, Content: text}, nil) {
				return
			}
			if rerr != nil {
				return
			}
		}
	}
}

func (r *Reader) detectEncoding(path string) (Encoding, error) {
	if err := r.sniff(path); err != nil {
		return "", err
	}

	encodings := r.Encodings
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}
	for _, enc := range encodings {
		ok, err := decodesFile(enc, path)
		if err != nil {
			return "", err
		}
		if ok {
			return enc, nil
		}
		slog.Warn("failed to decode, trying next encoding", "path", path, "encoding", enc)
	}
	return "", errors.Errorf("%s: %w", path, ErrUndecodable)
}

func (r *Reader) sniff(path string) error {
	rc, err := openStream(path)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	size := r.SniffBytes
	if size <= 0 {
		size = defaultSniffBytes
	}
	block := make([]byte, size)
	n, err := io.ReadFull(rc, block)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Errorf("read %s: %w", path, err)
	}
	if looksBinary(block[:n]) {
		return errors.Errorf("%s: %w", path, ErrBinary)
	}
	return nil
}

func decodesFile(enc Encoding, path string) (bool, error) {
	rc, err := openStream(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = rc.Close() }()

	ok, err := decodes(enc, rc)
	if err != nil {
		return false, errors.Errorf("decode %s as %s: %w", path, enc, err)
	}
	return ok, nil
}

// openStream opens path and, for .gz/.xz, wraps it in a decompressor.
// Closing the result releases both.
func openStream(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("open log file: %w", err)
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, errors.Errorf("gzip %s: %w", path, err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, errors.Errorf("xz %s: %w", path, err)
		}
		return &stackedCloser{Reader: xr, closers: []io.Closer{f}}, nil
	}
	return f, nil
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func compressed(path string) bool {
	return strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".xz")
}

// materialize writes the decompressed content of path to its sibling
// without the compression extension. An existing sibling is left alone.
func materialize(path string) error {
	target := strings.TrimSuffix(path, filepath.Ext(path))
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	rc, err := openStream(path)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return errors.Errorf("create temp: %w", err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Errorf("decompress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Errorf("rename: %w", err)
	}
	return nil
}
