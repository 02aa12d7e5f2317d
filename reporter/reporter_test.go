package reporter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddielth/co2-sensor/sensor"
)

type closeRecorder struct {
	bytes.Buffer
	closed int
}

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func sample(t *testing.T) sensor.Measurement {
	t.Helper()
	m, ok := sensor.Parse("CO2=955,HUM=46.3,TMP=32.0")
	require.True(t, ok)
	return m
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatCSV, ParseFormat(" CSV "))
	assert.Equal(t, FormatPlain, ParseFormat("xml"))
	assert.Equal(t, FormatPlain, ParseFormat(""))
}

func TestPlainReporter(t *testing.T) {
	var out closeRecorder
	r, err := New(FormatPlain, &out)
	require.NoError(t, err)

	require.NoError(t, r.Print(sample(t)))
	require.NoError(t, r.Close())
	assert.Equal(t, "co2=955, humidity=46.3, temperature=32.0\n", out.String())
}

func TestJSONReporter_EmptyStream(t *testing.T) {
	var out closeRecorder
	r, err := New(FormatJSON, &out)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "[\n]\n", out.String())
}

func TestJSONReporter_LegacyTrailingComma(t *testing.T) {
	var out closeRecorder
	r, err := New(FormatJSON, &out)
	require.NoError(t, err)

	m := sample(t)
	m.Set(sensor.FieldTime, "2026-10-19T10:00:00")
	require.NoError(t, r.Print(m))
	require.NoError(t, r.Close())

	want := "[\n" +
		`{"co2":"955","humidity":"46.3","temperature":"32.0","time":"2026-10-19T10:00:00"},` + "\n" +
		"]\n"
	assert.Equal(t, want, out.String())
}

func TestJSONReporter_StrictIsValidJSON(t *testing.T) {
	var out closeRecorder
	r, err := New(FormatJSON, &out, WithStrictJSON())
	require.NoError(t, err)

	require.NoError(t, r.Print(sample(t)))
	require.NoError(t, r.Print(sample(t)))
	require.NoError(t, r.Close())

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "955", decoded[1]["co2"])
}

func TestCSVReporter_HeaderOnce(t *testing.T) {
	var out closeRecorder
	r, err := New(FormatCSV, &out)
	require.NoError(t, err)

	require.NoError(t, r.Print(sample(t)))
	require.NoError(t, r.Print(sample(t)))
	require.NoError(t, r.Close())

	assert.Equal(t, "#co2,humidity,temperature\n955,46.3,32.0\n955,46.3,32.0\n", out.String())
}

func TestCSVReporter_WritesRawValues(t *testing.T) {
	var out closeRecorder
	r, err := New(FormatCSV, &out)
	require.NoError(t, err)

	m, ok := sensor.Parse("CO2=955,HUM=46.3, TMP")
	require.True(t, ok)
	require.NoError(t, r.Print(m))

	m, ok = sensor.Parse(`CO2=955,HUM="46.3",TMP=32.0`)
	require.True(t, ok)
	require.NoError(t, r.Print(m))
	require.NoError(t, r.Close())

	assert.Equal(t, "#co2,humidity,temperature\n955,46.3, TMP\n955,\"46.3\",32.0\n", out.String())
}

func TestCSVReporter_NoHeaderForEmptyRecord(t *testing.T) {
	var out closeRecorder
	r, err := New(FormatCSV, &out)
	require.NoError(t, err)

	require.NoError(t, r.Print(sensor.Measurement{}))
	require.NoError(t, r.Print(sample(t)))
	require.NoError(t, r.Close())

	assert.NotContains(t, out.String(), "#")
}

func TestClose_IdempotentAndClosesSink(t *testing.T) {
	for _, f := range []Format{FormatPlain, FormatJSON, FormatCSV} {
		var out closeRecorder
		r, err := New(f, &out)
		require.NoError(t, err)

		require.NoError(t, r.Close())
		require.NoError(t, r.Close())
		assert.Equal(t, 1, out.closed, f)
		assert.Error(t, r.Print(sample(t)), f)
	}
}

func TestOpenSink_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "co2.log")

	for i := 0; i < 2; i++ {
		w, err := OpenSink(path)
		require.NoError(t, err)
		r, err := New(FormatPlain, w)
		require.NoError(t, err)
		require.NoError(t, r.Print(sample(t)))
		require.NoError(t, r.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
}

func TestOpenSink_StdoutNotClosed(t *testing.T) {
	w, err := OpenSink("")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = os.Stdout.Stat()
	assert.NoError(t, err)
}
