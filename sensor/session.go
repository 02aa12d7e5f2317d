package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/eddielth/co2-sensor/logger"
	"github.com/eddielth/co2-sensor/metrics"
	"github.com/eddielth/co2-sensor/transport"
)

const (
	// DefaultBaudRate is the sensor's fixed line speed.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds each blocking read.
	DefaultReadTimeout = 3 * time.Second

	// StartCommand starts streaming.
	StartCommand = "STA"
	// StopCommand stops streaming.
	StopCommand = "STP"
)

// Conn is the line transport a Session talks over.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(text string) error
	Close() error
}

// Option configures a Session.
type Option func(*Session)

// WithStrictKeys makes the session reject lines whose keys are not CO2, HUM, TMP.
func WithStrictKeys() Option {
	return func(s *Session) {
		s.parse = ParseStrict
	}
}

// Session drives the sensor protocol: start on open, stop on close.
type Session struct {
	conn    Conn
	parse   func(string) (Measurement, bool)
	stopped bool
	closed  bool
}

// Open opens the serial device and starts a session on it.
func Open(cfg transport.Config, opts ...Option) (*Session, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	conn, err := transport.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, opts...)
}

// NewSession sends the start command over conn and discards the
// acknowledgement line. On failure conn is closed.
func NewSession(conn Conn, opts ...Option) (*Session, error) {
	s := &Session{
		conn:  conn,
		parse: Parse,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := conn.WriteLine(StartCommand); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send start command: %w", err)
	}

	ack, err := conn.ReadLine()
	switch {
	case errors.Is(err, transport.ErrTimeout):
		logger.Warn("no acknowledgement to %s within read timeout", StartCommand)
	case err != nil:
		conn.Close()
		return nil, fmt.Errorf("read start acknowledgement: %w", err)
	default:
		logger.Debug("sensor acknowledged start: %q", ack)
	}

	logger.Info("sensor session started")
	return s, nil
}

// ReadRaw returns the next raw line. A read timeout is not an error: it is
// logged and reported as an empty line.
func (s *Session) ReadRaw() (string, error) {
	line, err := s.conn.ReadLine()
	if errors.Is(err, transport.ErrTimeout) {
		metrics.ReadTimeoutsTotal.Inc()
		logger.Warn("no data from sensor within read timeout")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	metrics.LinesReadTotal.Inc()
	return line, nil
}

// Parse applies the session's record parser to line.
func (s *Session) Parse(line string) (Measurement, bool) {
	return s.parse(line)
}

// ReadMeasurement reads and parses the next line. ok is false when nothing
// arrived or the line was malformed.
func (s *Session) ReadMeasurement() (m Measurement, ok bool, err error) {
	line, err := s.ReadRaw()
	if err != nil || line == "" {
		return Measurement{}, false, err
	}
	m, ok = s.parse(line)
	if !ok {
		metrics.RecordsDroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
		logger.Debug("dropping malformed line %q", line)
	}
	return m, ok, nil
}

// Stop sends the stop command once. On a closed port it is a no-op.
func (s *Session) Stop() error {
	if s.stopped {
		return nil
	}
	s.stopped = true
	err := s.conn.WriteLine(StopCommand)
	if errors.Is(err, transport.ErrNotOpen) || errors.Is(err, transport.ErrClosed) {
		logger.Warn("cannot send %s: %v", StopCommand, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("send stop command: %w", err)
	}
	return nil
}

// Close stops the sensor and releases the port. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	stopErr := s.Stop()
	if stopErr != nil {
		logger.Error("%v", stopErr)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close port: %w", err)
	}
	logger.Info("sensor session closed")
	return stopErr
}
