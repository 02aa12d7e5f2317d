package validator

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/eddielth/co2-sensor/config"
	"github.com/eddielth/co2-sensor/sensor"
)

// Validator checks a measurement before it is reported
type Validator interface {
	// Validate returns an error when the measurement must be dropped
	Validate(m sensor.Measurement) error
}

// RangeValidator requires a field to be numeric and within [Min, Max]
type RangeValidator struct {
	Field string
	Min   float64
	Max   float64
}

// Validate checks that the field value lies within the range
func (rv RangeValidator) Validate(m sensor.Measurement) error {
	raw, ok := m.Get(rv.Field)
	if !ok {
		return fmt.Errorf("field %s does not exist", rv.Field)
	}

	value, err := cast.ToFloat64E(raw)
	if err != nil {
		return fmt.Errorf("field %s is not numeric: %q", rv.Field, raw)
	}

	if value < rv.Min || value > rv.Max {
		return fmt.Errorf("field %s value %g is not in range [%g, %g]", rv.Field, value, rv.Min, rv.Max)
	}

	return nil
}

// Chain runs validators in order and stops at the first failure
type Chain []Validator

// Validate implements Validator
func (c Chain) Validate(m sensor.Measurement) error {
	for _, v := range c {
		if err := v.Validate(m); err != nil {
			return err
		}
	}
	return nil
}

// FromConfig builds a chain from the configured ranges
func FromConfig(cfg config.ValidationConfig) Chain {
	chain := make(Chain, 0, len(cfg.Ranges))
	for _, r := range cfg.Ranges {
		chain = append(chain, RangeValidator{Field: r.Field, Min: r.Min, Max: r.Max})
	}
	return chain
}
