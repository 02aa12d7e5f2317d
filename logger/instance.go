package logger

import (
	"fmt"
	"strings"
	"sync"
)

var (
	defaultLogger = newWithWriter(nil, INFO)
	defaultMu     sync.RWMutex
)

func init() {
	logger, err := New(DefaultConfig())
	if err == nil {
		defaultLogger = logger
	}
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// InitFromConfig replaces the default logger
func InitFromConfig(level, filePath string, maxSize, maxBackups int, console bool) error {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger, err := New(LoggerConfig{
		Level:      logLevel,
		FilePath:   filePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Console:    console,
	})
	if err != nil {
		return err
	}

	defaultMu.Lock()
	old := defaultLogger
	defaultLogger = logger
	defaultMu.Unlock()

	return old.Close()
}

// ParseLogLevel parses log level string
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}

// Debug logs debug level messages
func Debug(format string, args ...interface{}) {
	current().Debug(format, args...)
}

// Info logs info level messages
func Info(format string, args ...interface{}) {
	current().Info(format, args...)
}

// Warn logs warning level messages
func Warn(format string, args ...interface{}) {
	current().Warn(format, args...)
}

// Error logs error level messages
func Error(format string, args ...interface{}) {
	current().Error(format, args...)
}

// Close closes the default logger
func Close() error {
	return current().Close()
}
