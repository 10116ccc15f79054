package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"

	"github.com/ryabkov82/ride-booking-ingest/internal/logging"
	"github.com/ryabkov82/ride-booking-ingest/internal/metrics"
)

// ErrSourceUnavailable is returned when the source file cannot be opened
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrUnsupportedEncoding is returned for an encoding other than utf-8 or windows-1251
var ErrUnsupportedEncoding = errors.New("unsupported encoding")

// ErrOutsideBaseDir and ErrNotRegularFile refine ErrSourceUnavailable
var (
	ErrOutsideBaseDir = errors.New("path resolves outside the allowed base directory")
	ErrNotRegularFile = errors.New("not a regular file")
)

// Options configures a Reader
type Options struct {
	Encoding       string // "utf-8" (default) or "windows-1251"
	AllowedBaseDir string // if set, the path must resolve inside it
	Logger         *logrus.Entry
	Timings        *metrics.Timings // optional
}

// Reader lazily decodes a line-delimited JSON file, one record per Next call
type Reader struct {
	path      string
	file      *os.File
	reader    *bufio.Reader
	lineNo    int64
	malformed int64
	log       *logrus.Entry
	timings   *metrics.Timings
	closed    bool
}

// Open opens the source file. Every failure to reach a readable regular file
// is reported as ErrSourceUnavailable.
func Open(path string, opts Options) (*Reader, error) {
	if opts.Encoding != "" && opts.Encoding != "utf-8" && opts.Encoding != "windows-1251" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, opts.Encoding)
	}

	resolved := path
	if opts.AllowedBaseDir != "" {
		p, err := confine(path, opts.AllowedBaseDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		resolved = p
	}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	// stat the open handle so the check and the read see the same file
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if !info.Mode().IsRegular() {
		file.Close()
		return nil, fmt.Errorf("%w: %w: %s", ErrSourceUnavailable, ErrNotRegularFile, resolved)
	}

	var in io.Reader = file
	if opts.Encoding == "windows-1251" {
		in = charmap.Windows1251.NewDecoder().Reader(file)
	}

	log := opts.Logger
	if log == nil {
		log = logging.New("source", logging.Options{})
	}

	return &Reader{
		path:    resolved,
		file:    file,
		reader:  bufio.NewReader(in),
		log:     log,
		timings: opts.Timings,
	}, nil
}

// confine resolves symlinks in path and baseDir and returns the resolved
// path if it lies inside baseDir
func confine(path, baseDir string) (string, error) {
	base, err := filepath.Abs(baseDir)
	if err == nil {
		base, err = filepath.EvalSymlinks(base)
	}
	if err != nil {
		return "", fmt.Errorf("allowed base directory %s: %w", baseDir, err)
	}

	target, err := filepath.Abs(path)
	if err == nil {
		target, err = filepath.EvalSymlinks(target)
	}
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(base, target)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBaseDir, path)
	}
	return target, nil
}

// Next returns the next record. Blank lines are skipped but still counted.
// It returns io.EOF once the file is exhausted.
func (r *Reader) Next(ctx context.Context) (Record, error) {
	if r.closed {
		return Record{}, io.EOF
	}

	for {
		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		default:
		}

		start := time.Now()
		line, readErr := r.reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return Record{}, fmt.Errorf("read line %d: %w", r.lineNo+1, readErr)
		}
		if line == "" && readErr == io.EOF {
			return Record{}, io.EOF
		}

		r.lineNo++
		trimmed := strings.TrimSpace(line)
		if r.lineNo == 1 {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "\ufeff"))
		}

		if trimmed == "" {
			if readErr == io.EOF {
				return Record{}, io.EOF
			}
			continue
		}

		rec := r.decode(trimmed)
		if r.timings != nil {
			r.timings.ObserveRead(time.Since(start))
		}
		return rec, nil
	}
}

func (r *Reader) decode(trimmed string) Record {
	value, err := decodeLine([]byte(trimmed))
	if err == nil {
		return Record{LineNo: r.lineNo, Value: value}
	}

	r.malformed++
	metrics.CounterSourceMalformedLines.Inc()
	r.log.WithFields(logrus.Fields{
		"lineNo": r.lineNo,
		"path":   r.path,
	}).Warnf("Line %d is not valid JSON: %v", r.lineNo, err)

	return Record{
		LineNo: r.lineNo,
		Invalid: &ErrorRecord{
			Error:      InvalidJSON,
			LineNumber: r.lineNo,
			RawData:    trimmed,
		},
	}
}

// Records returns a single-use sequence over the remaining records. The
// file is closed when the sequence ends or the consumer stops early. A read
// error is yielded once and ends the sequence.
func (r *Reader) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		defer r.Close()
		for {
			rec, err := r.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// LineNo returns the number of lines consumed so far, blank ones included
func (r *Reader) LineNo() int64 {
	return r.lineNo
}

// Malformed returns how many ErrorRecords have been produced
func (r *Reader) Malformed() int64 {
	return r.malformed
}

// Close releases the file handle. Safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close source %s: %w", r.path, err)
	}
	return nil
}

// Records opens path and returns its record sequence. The caller must range
// over the sequence (even partially) for the file to be released.
func Records(ctx context.Context, path string, opts Options) (iter.Seq2[Record, error], error) {
	r, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	return r.Records(ctx), nil
}
