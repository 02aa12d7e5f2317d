package sensor

import (
	"strings"
)

// positional is the field assigned to each comma segment of a record line.
var positional = [...]struct {
	field string
	key   string
}{
	{FieldCO2, "CO2"},
	{FieldHumidity, "HUM"},
	{FieldTemperature, "TMP"},
}

// Parse converts a raw line of the form "CO2=955,HUM=46.3,TMP=32.0" into a
// Measurement. Fields are assigned by position, not by key. A line that does
// not split into exactly three comma segments yields ok == false.
func Parse(line string) (Measurement, bool) {
	segments := strings.Split(line, ",")
	if len(segments) != len(positional) {
		return Measurement{}, false
	}

	m := Measurement{fields: make([]Field, 0, len(positional)+1)}
	for i, segment := range segments {
		_, value := splitSegment(segment)
		m.fields = append(m.fields, Field{Key: positional[i].field, Value: value})
	}
	return m, true
}

// ParseStrict is Parse with the additional requirement that each segment
// carries the expected key (CO2, HUM, TMP, case-insensitive).
func ParseStrict(line string) (Measurement, bool) {
	segments := strings.Split(line, ",")
	if len(segments) != len(positional) {
		return Measurement{}, false
	}
	for i, segment := range segments {
		key, _ := splitSegment(segment)
		if !strings.EqualFold(key, positional[i].key) {
			return Measurement{}, false
		}
	}
	return Parse(line)
}

// splitSegment splits "KEY=VALUE" into its trimmed parts. A segment without
// exactly one '=' is returned whole as the value, with no key.
func splitSegment(segment string) (key, value string) {
	parts := strings.SplitN(segment, "=", 2)
	if len(parts) != 2 || strings.Contains(parts[1], "=") {
		return "", segment
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
