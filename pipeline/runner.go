// Package pipeline runs the read, parse, throttle and report loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/eddielth/co2-sensor/logger"
	"github.com/eddielth/co2-sensor/metrics"
	"github.com/eddielth/co2-sensor/reporter"
	"github.com/eddielth/co2-sensor/sensor"
	"github.com/eddielth/co2-sensor/transport"
)

// TimeLayout is the format of the injected time field.
const TimeLayout = "2006-01-02T15:04:05"

const maxConsecutiveErrors = 10

// Source yields parsed measurements; ok is false for ticks without one.
type Source interface {
	ReadMeasurement() (m sensor.Measurement, ok bool, err error)
}

// Validator rejects measurements that must not be reported.
type Validator interface {
	Validate(m sensor.Measurement) error
}

// Transformer rewrites a measurement; ok false drops it.
type Transformer interface {
	Transform(m sensor.Measurement) (out sensor.Measurement, ok bool, err error)
}

// Store receives every reported measurement.
type Store interface {
	Store(m sensor.Measurement) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimestamps adds a local time field to every reported measurement.
func WithTimestamps() Option {
	return func(r *Runner) { r.stampTime = true }
}

// WithValidator drops measurements v rejects.
func WithValidator(v Validator) Option {
	return func(r *Runner) { r.validator = v }
}

// WithTransformer runs t on every measurement that passed the throttle.
func WithTransformer(t Transformer) Option {
	return func(r *Runner) { r.transformer = t }
}

// WithStore also sends reported measurements to s.
func WithStore(s Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner owns one read loop. It is not safe for concurrent use; only the
// throttle interval may be changed from elsewhere.
type Runner struct {
	source      Source
	reporter    reporter.Reporter
	throttle    *Throttle
	validator   Validator
	transformer Transformer
	store       Store
	stampTime   bool
	now         func() time.Time
}

// NewRunner builds a runner reading from source and printing to rep.
func NewRunner(source Source, rep reporter.Reporter, throttle *Throttle, opts ...Option) *Runner {
	r := &Runner{
		source:   source,
		reporter: rep,
		throttle: throttle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loops until ctx is cancelled or the sensor stream ends, both of which
// return nil. It returns an error only after repeated unexpected read failures.
// Cancellation is observed between reads, so it takes effect within one read timeout.
func (r *Runner) Run(ctx context.Context) error {
	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, stopping")
			return nil
		default:
		}

		m, ok, err := r.source.ReadMeasurement()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || errors.Is(err, transport.ErrNotOpen) {
				logger.Warn("sensor stream ended: %v", err)
				return nil
			}
			consecutiveErrors++
			logger.Error("read from sensor failed: %v", err)
			if consecutiveErrors >= maxConsecutiveErrors {
				return fmt.Errorf("too many consecutive read errors (%d): %w", consecutiveErrors, err)
			}
			continue
		}
		consecutiveErrors = 0

		if ok {
			r.process(m)
		}
	}
}

// process validates, throttles, stamps, transforms and emits one measurement.
func (r *Runner) process(m sensor.Measurement) bool {
	if r.validator != nil {
		if err := r.validator.Validate(m); err != nil {
			metrics.RecordsDroppedTotal.WithLabelValues(metrics.ReasonInvalid).Inc()
			logger.Warn("dropping invalid measurement %s: %v", m, err)
			return false
		}
	}

	now := r.now()
	if !r.throttle.Allow(now) {
		metrics.RecordsDroppedTotal.WithLabelValues(metrics.ReasonThrottled).Inc()
		return false
	}

	if r.stampTime {
		m.Set(sensor.FieldTime, now.Format(TimeLayout))
	}

	if r.transformer != nil {
		out, ok, err := r.transformer.Transform(m)
		if err != nil {
			metrics.RecordsDroppedTotal.WithLabelValues(metrics.ReasonInvalid).Inc()
			logger.Error("transform failed: %v", err)
			return false
		}
		if !ok {
			metrics.RecordsDroppedTotal.WithLabelValues(metrics.ReasonFiltered).Inc()
			logger.Debug("measurement filtered by transformer")
			return false
		}
		m = out
	}

	if err := r.reporter.Print(m); err != nil {
		logger.Error("failed to report measurement: %v", err)
	} else {
		metrics.RecordsEmittedTotal.Inc()
		observe(m)
	}

	if r.store != nil {
		// failures are logged per backend by the storage manager
		_ = r.store.Store(m)
	}
	return true
}

// observe exports the numeric sensor fields as gauges.
func observe(m sensor.Measurement) {
	for _, field := range []string{sensor.FieldCO2, sensor.FieldHumidity, sensor.FieldTemperature} {
		raw, ok := m.Get(field)
		if !ok {
			continue
		}
		if v, err := cast.ToFloat64E(raw); err == nil {
			metrics.LastMeasurement.WithLabelValues(field).Set(v)
		}
	}
}
