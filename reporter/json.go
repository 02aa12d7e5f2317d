package reporter

import (
	"fmt"
	"io"

	"github.com/eddielth/co2-sensor/sensor"
)

// jsonReporter wraps the output in a JSON array, one object per line.
//
// In legacy mode every object is followed by a comma, including the last,
// which keeps existing log files byte compatible but is not valid JSON.
// Strict mode writes the separator before every object but the first.
type jsonReporter struct {
	sink
	strict bool
	count  int
}

func newJSONReporter(w io.Writer, strict bool) (*jsonReporter, error) {
	if _, err := io.WriteString(w, "[\n"); err != nil {
		return nil, fmt.Errorf("write array start: %w", err)
	}
	return &jsonReporter{sink: sink{w: w}, strict: strict}, nil
}

func (r *jsonReporter) Print(m sensor.Measurement) error {
	if r.closed {
		return errClosed
	}
	obj, err := m.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serialize measurement failed: %w", err)
	}

	var line []byte
	switch {
	case !r.strict:
		line = append(obj, ',', '\n')
	case r.count == 0:
		line = obj
	default:
		line = append([]byte(",\n"), obj...)
	}
	r.count++

	_, err = r.w.Write(line)
	return err
}

func (r *jsonReporter) Close() error {
	if r.closed {
		return nil
	}
	end := "]\n"
	if r.strict && r.count > 0 {
		end = "\n]\n"
	}
	_, werr := io.WriteString(r.w, end)
	if err := r.close(); err != nil {
		return err
	}
	return werr
}
