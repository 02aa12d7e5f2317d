package sensor

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Field names produced by the parser, in output order.
const (
	FieldCO2         = "co2"
	FieldHumidity    = "humidity"
	FieldTemperature = "temperature"
	FieldTime        = "time"
)

// Field is a single named value of a Measurement.
type Field struct {
	Key   string
	Value string
}

// Measurement is an ordered set of string fields. Order is insertion order
// and drives CSV columns and JSON key order.
type Measurement struct {
	fields []Field
}

// NewMeasurement builds a measurement from fields in the given order.
func NewMeasurement(fields ...Field) Measurement {
	m := Measurement{}
	for _, f := range fields {
		m.Set(f.Key, f.Value)
	}
	return m
}

// Set replaces the value of key or appends it as the last field.
func (m *Measurement) Set(key, value string) {
	for i := range m.fields {
		if m.fields[i].Key == key {
			m.fields[i].Value = value
			return
		}
	}
	m.fields = append(m.fields, Field{Key: key, Value: value})
}

// Get returns the value of key.
func (m Measurement) Get(key string) (string, bool) {
	for _, f := range m.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Len returns the number of fields.
func (m Measurement) Len() int {
	return len(m.fields)
}

// Fields returns a copy of the fields.
func (m Measurement) Fields() []Field {
	out := make([]Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// Keys returns the field names in order.
func (m Measurement) Keys() []string {
	keys := make([]string, len(m.fields))
	for i, f := range m.fields {
		keys[i] = f.Key
	}
	return keys
}

// Values returns the field values in order.
func (m Measurement) Values() []string {
	values := make([]string, len(m.fields))
	for i, f := range m.fields {
		values[i] = f.Value
	}
	return values
}

// String renders the measurement as "key=value" pairs separated by ", ".
func (m Measurement) String() string {
	parts := make([]string, len(m.fields))
	for i, f := range m.fields {
		parts[i] = f.Key + "=" + f.Value
	}
	return strings.Join(parts, ", ")
}

// MarshalJSON encodes the measurement as a single-line object keeping field order.
func (m Measurement) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
