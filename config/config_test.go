package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, _, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort(), cfg.Port)
	assert.Equal(t, 115200, cfg.Baud)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, time.Second, cfg.SampleInterval())
	assert.Empty(t, cfg.Log)
	assert.False(t, cfg.Time)
	assert.True(t, cfg.Logger.Console)
	assert.Equal(t, "sensors/{device}/measurement", cfg.MQTT.Topic)
}

func TestLoad_ShortFlags(t *testing.T) {
	cfg, _, err := Load([]string{"-p", "/dev/ttyUSB1", "-l", "out.log", "-t", "-s", "2.5", "-f", "csv"})
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Port)
	assert.Equal(t, "out.log", cfg.Log)
	assert.True(t, cfg.Time)
	assert.Equal(t, 2500*time.Millisecond, cfg.SampleInterval())
	assert.Equal(t, "csv", cfg.Format)
}

func TestLoad_LongFlags(t *testing.T) {
	cfg, _, err := Load([]string{"--port=COM4", "--sampleDuration=0", "--format=plain", "--json-strict", "--strict-keys", "--log-level=debug"})
	require.NoError(t, err)

	assert.Equal(t, "COM4", cfg.Port)
	assert.Zero(t, cfg.SampleDuration)
	assert.True(t, cfg.JSONStrict)
	assert.True(t, cfg.StrictKeys)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

const sampleYAML = `
port: /dev/ttyS9
sample_duration: 5
format: csv
validation:
  ranges:
    - field: co2
      min: 0
      max: 10000
storage:
  database:
    enabled: true
    type: sqlite
    dsn: readings.db
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  qos: 1
`

func TestLoad_FileAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	cfg, loader, err := Load([]string{"-c", path, "-f", "json"})
	require.NoError(t, err)
	require.NotNil(t, loader)

	assert.Equal(t, "/dev/ttyS9", cfg.Port)
	assert.Equal(t, 5.0, cfg.SampleDuration)
	assert.Equal(t, "json", cfg.Format, "explicit flag wins over file")
	require.Len(t, cfg.Validation.Ranges, 1)
	assert.Equal(t, 10000.0, cfg.Validation.Ranges[0].Max)
	assert.True(t, cfg.Storage.Database.Enabled)
	assert.Equal(t, "sqlite", cfg.Storage.Database.Type)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestLoad_Help(t *testing.T) {
	_, _, err := Load([]string{"--help"})
	assert.True(t, errors.Is(err, pflag.ErrHelp))
	assert.Contains(t, Usage(), "sampleDuration")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Port: "/dev/x", Baud: 115200, SampleDuration: 1}
	}
	assert.NoError(t, base().Validate())

	c := base()
	c.Baud = 0
	assert.Error(t, c.Validate())

	c = base()
	c.SampleDuration = -1
	assert.Error(t, c.Validate())

	c = base()
	c.ReadTimeout = -time.Second
	assert.Error(t, c.Validate())

	c = base()
	c.Storage.Database = DatabaseStorageConfig{Enabled: true, Type: "oracle", DSN: "x"}
	assert.Error(t, c.Validate())

	c = base()
	c.MQTT.Enabled = true
	assert.Error(t, c.Validate())

	c = base()
	c.Storage.Redis.Enabled = true
	assert.Error(t, c.Validate())

	c = base()
	c.Storage.Webhook.Enabled = true
	assert.Error(t, c.Validate())
}

func TestLoad_RejectsNegativeTimeout(t *testing.T) {
	_, _, err := Load([]string{"--timeout=-1s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read timeout")
}

func TestLoad_StorageDefaults(t *testing.T) {
	cfg, _, err := Load(nil)
	require.NoError(t, err)

	assert.False(t, cfg.Storage.Redis.Enabled)
	assert.Equal(t, "co2-sensor:measurements", cfg.Storage.Redis.Stream)
	assert.Equal(t, 10*time.Second, cfg.Storage.Webhook.Timeout)
	assert.Equal(t, 2, cfg.Storage.Webhook.RetryCount)
}

func TestWatch_RequiresFile(t *testing.T) {
	_, loader, err := Load(nil)
	require.NoError(t, err)
	assert.Error(t, loader.Watch(func(*Config) error { return nil }))
}

func TestWatch_ReloadsSampleDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sample_duration: 1\n"), 0644))

	_, loader, err := Load([]string{"-c", path})
	require.NoError(t, err)

	changed := make(chan float64, 1)
	require.NoError(t, loader.Watch(func(cfg *Config) error {
		select {
		case changed <- cfg.SampleDuration:
		default:
		}
		return nil
	}))

	time.Sleep(100 * time.Millisecond)
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("sample_duration: 7\n"), 0644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case d := <-changed:
		assert.Equal(t, 7.0, d)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for config change")
	}
}
