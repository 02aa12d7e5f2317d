package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/eddielth/co2-sensor/sensor"
)

// csvReporter writes "#"-prefixed field names before the first row and one
// row of values per measurement. Values are joined as they are, without
// quoting, so raw sensor text reaches the log unchanged.
type csvReporter struct {
	sink
	first bool
}

func newCSVReporter(w io.Writer) *csvReporter {
	return &csvReporter{
		sink:  sink{w: w},
		first: true,
	}
}

func (r *csvReporter) Print(m sensor.Measurement) error {
	if r.closed {
		return errClosed
	}

	if r.first {
		r.first = false
		if m.Len() > 0 {
			if _, err := io.WriteString(r.w, "#"+strings.Join(m.Keys(), ",")+"\n"); err != nil {
				return fmt.Errorf("error writing CSV header: %w", err)
			}
		}
	}

	if _, err := io.WriteString(r.w, strings.Join(m.Values(), ",")+"\n"); err != nil {
		return fmt.Errorf("error writing CSV: %w", err)
	}
	return nil
}

func (r *csvReporter) Close() error {
	return r.close()
}
