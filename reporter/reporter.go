// Package reporter formats measurements as plain text, JSON or CSV.
package reporter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/eddielth/co2-sensor/sensor"
)

// Format selects a Reporter variant.
type Format string

const (
	FormatPlain Format = "plain"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

var errClosed = errors.New("reporter closed")

// ParseFormat maps a flag value to a Format. Unknown values select plain.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON
	case FormatCSV:
		return FormatCSV
	default:
		return FormatPlain
	}
}

// Reporter writes measurements to a sink.
type Reporter interface {
	// Print writes one measurement.
	Print(m sensor.Measurement) error
	// Close finishes the output and closes the sink. Further calls are no-ops.
	Close() error
}

type options struct {
	strictJSON bool
}

// Option configures a Reporter.
type Option func(*options)

// WithStrictJSON makes the JSON reporter emit a valid array instead of
// comma-terminating every record.
func WithStrictJSON() Option {
	return func(o *options) {
		o.strictJSON = true
	}
}

// New builds the reporter for format writing to w. If w is an io.Closer it is
// closed by the reporter's Close.
func New(format Format, w io.Writer, opts ...Option) (Reporter, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	switch format {
	case FormatJSON:
		return newJSONReporter(w, o.strictJSON)
	case FormatCSV:
		return newCSVReporter(w), nil
	default:
		return newPlainReporter(w), nil
	}
}

// OpenSink opens path for appending, creating it and its directory as
// needed. An empty path selects stdout, which is never closed.
func OpenSink(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dir %s failed: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log %s failed: %w", path, err)
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// sink is the shared write/close state of every variant.
type sink struct {
	w      io.Writer
	closed bool
}

func (s *sink) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type plainReporter struct {
	sink
}

func newPlainReporter(w io.Writer) *plainReporter {
	return &plainReporter{sink{w: w}}
}

func (r *plainReporter) Print(m sensor.Measurement) error {
	if r.closed {
		return errClosed
	}
	_, err := fmt.Fprintln(r.w, m.String())
	return err
}

func (r *plainReporter) Close() error {
	return r.close()
}
