// Package transport provides line-oriented access to a serial port.
//
// Lines are newline delimited on read and CR-LF terminated on write. Reads are
// bounded by the configured timeout; a timeout is reported as ErrTimeout and
// any partial line received so far is kept for the next call.
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/eddielth/co2-sensor/logger"
	"github.com/eddielth/co2-sensor/metrics"
)

const maxLineLength = 4096

var (
	// ErrTimeout is returned by ReadLine when no complete line arrived in time.
	ErrTimeout = errors.New("serial read timeout")
	// ErrNotOpen is returned for reads and writes on an unopened or closed transport.
	ErrNotOpen = errors.New("serial port not open")
	// ErrClosed is returned when the device disconnected or the stream ended.
	ErrClosed = errors.New("serial port closed")
)

// Config holds the parameters used to open a port.
type Config struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration // zero blocks until data arrives
}

// Port is the subset of a serial port the transport needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens a Port for the given configuration.
type Opener func(cfg Config) (Port, error)

// SerialOpener opens a real serial device.
func SerialOpener(cfg Config) (Port, error) {
	port, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, err
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	return port, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// Transport wraps a Port with line framing.
type Transport struct {
	cfg     Config
	opener  Opener
	port    Port
	pending []byte
	buf     []byte
	// set after an overlong line; bytes are dropped up to the next newline
	discarding bool
}

// Open opens the serial device described by cfg.
func Open(cfg Config) (*Transport, error) {
	return OpenWith(cfg, SerialOpener)
}

// OpenWith opens cfg using a custom opener.
func OpenWith(cfg Config, opener Opener) (*Transport, error) {
	t := &Transport{
		cfg:    cfg,
		opener: opener,
		buf:    make([]byte, 256),
	}
	if err := t.Reopen(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reopen opens the port again if it was closed. It is a no-op on an open port.
func (t *Transport) Reopen() error {
	if t.port != nil {
		return nil
	}
	port, err := t.opener(t.cfg)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.cfg.Device, err)
	}
	t.port = port
	t.pending = t.pending[:0]
	t.discarding = false
	return nil
}

// IsOpen reports whether the port is currently open.
func (t *Transport) IsOpen() bool {
	return t.port != nil
}

// Device returns the configured device path.
func (t *Transport) Device() string {
	return t.cfg.Device
}

// ReadLine returns the next line with surrounding whitespace and line
// terminators removed.
func (t *Transport) ReadLine() (string, error) {
	if t.port == nil {
		return "", ErrNotOpen
	}
	for {
		if i := bytes.IndexByte(t.pending, '\n'); i >= 0 {
			line := string(t.pending[:i])
			t.pending = append(t.pending[:0], t.pending[i+1:]...)
			if t.discarding {
				t.discarding = false
				continue
			}
			return strings.TrimSpace(strings.ToValidUTF8(line, "�")), nil
		}
		if len(t.pending) > maxLineLength {
			if !t.discarding {
				logger.Warn("line from %s exceeds %d bytes, dropping it", t.cfg.Device, maxLineLength)
				metrics.RecordsDroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
			}
			t.discarding = true
			t.pending = t.pending[:0]
		}

		n, err := t.port.Read(t.buf)
		t.pending = append(t.pending, t.buf[:n]...)
		if err != nil {
			if isClosed(err) {
				return "", ErrClosed
			}
			return "", fmt.Errorf("read %s: %w", t.cfg.Device, err)
		}
		if n == 0 {
			return "", ErrTimeout
		}
	}
}

// WriteLine writes text followed by CR-LF.
func (t *Transport) WriteLine(text string) error {
	if t.port == nil {
		return ErrNotOpen
	}
	if _, err := io.WriteString(t.port, text+"\r\n"); err != nil {
		if isClosed(err) {
			return ErrClosed
		}
		return fmt.Errorf("write %s: %w", t.cfg.Device, err)
	}
	return nil
}

// Close closes the port. Calling it more than once is safe.
func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.pending = t.pending[:0]
	t.discarding = false
	return err
}

func isClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, syscall.EIO) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortClosed
	}
	return false
}
