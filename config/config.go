package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eddielth/co2-sensor/logger"
)

// Config is the application configuration, merged from flags, an optional
// YAML file and CO2_* environment variables.
type Config struct {
	Port           string        `mapstructure:"port"`
	Baud           int           `mapstructure:"baud"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	Log            string        `mapstructure:"log"`
	Time           bool          `mapstructure:"time"`
	SampleDuration float64       `mapstructure:"sample_duration"`
	Format         string        `mapstructure:"format"`
	JSONStrict     bool          `mapstructure:"json_strict"`
	StrictKeys     bool          `mapstructure:"strict_keys"`
	ListPorts      bool          `mapstructure:"list_ports"`

	Logger      LoggerConfig      `mapstructure:"logger"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	Transformer TransformerConfig `mapstructure:"transformer"`
	Storage     StorageConfig     `mapstructure:"storage"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// LoggerConfig configures diagnostic logging
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Console    bool   `mapstructure:"console"`
}

// ValidationConfig lists the range checks applied to every measurement
type ValidationConfig struct {
	Ranges []RangeConfig `mapstructure:"ranges"`
}

// RangeConfig bounds one numeric field
type RangeConfig struct {
	Field string  `mapstructure:"field"`
	Min   float64 `mapstructure:"min"`
	Max   float64 `mapstructure:"max"`
}

// TransformerConfig points at the optional transform script
type TransformerConfig struct {
	ScriptPath string `mapstructure:"script_path"`
	ScriptCode string `mapstructure:"script_code"`
}

// Enabled reports whether a script is configured
func (t TransformerConfig) Enabled() bool {
	return t.ScriptPath != "" || t.ScriptCode != ""
}

// StorageConfig configures the storage backends
type StorageConfig struct {
	Database DatabaseStorageConfig `mapstructure:"database"`
	Redis    RedisStorageConfig    `mapstructure:"redis"`
	Webhook  WebhookStorageConfig  `mapstructure:"webhook"`
}

// DatabaseStorageConfig configures the SQL backend
type DatabaseStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"`
	DSN     string `mapstructure:"dsn"`
}

// RedisStorageConfig configures the Redis stream backend
type RedisStorageConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// WebhookStorageConfig configures the HTTP webhook backend
type WebhookStorageConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	URL        string            `mapstructure:"url"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	RetryCount int               `mapstructure:"retry_count"`
	Headers    map[string]string `mapstructure:"headers"`
}

// MQTTConfig configures the MQTT publisher
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	Device   string `mapstructure:"device"`
	QoS      byte   `mapstructure:"qos"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// SampleInterval returns SampleDuration as a time.Duration
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleDuration * float64(time.Second))
}

// Validate checks value constraints that flags and YAML cannot express
func (c *Config) Validate() error {
	if c.Port == "" && !c.ListPorts {
		return errors.New("serial port must not be empty")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read timeout must not be negative: %s", c.ReadTimeout)
	}
	if c.SampleDuration < 0 {
		return fmt.Errorf("sample duration must not be negative: %g", c.SampleDuration)
	}
	if c.Storage.Database.Enabled {
		switch c.Storage.Database.Type {
		case "mysql", "postgresql", "sqlite":
		default:
			return fmt.Errorf("unsupported database type: %s", c.Storage.Database.Type)
		}
		if c.Storage.Database.DSN == "" {
			return errors.New("database dsn must not be empty")
		}
	}
	if c.Storage.Redis.Enabled && c.Storage.Redis.Addr == "" {
		return errors.New("redis address must not be empty")
	}
	if c.Storage.Webhook.Enabled && c.Storage.Webhook.URL == "" {
		return errors.New("webhook url must not be empty")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("MQTT broker address cannot be empty")
	}
	return nil
}

// ConfigChangeCallback is called with the new configuration after the file changed
type ConfigChangeCallback func(cfg *Config) error

// Loader keeps the viper instance behind a loaded Config so the file can be watched.
type Loader struct {
	v    *viper.Viper
	path string
}

// DefaultPort returns the usual device name of the sensor on this platform.
func DefaultPort() string {
	switch runtime.GOOS {
	case "darwin":
		return "/dev/tty.usbmodem101"
	case "windows":
		return "COM3"
	default:
		return "/dev/ttyACM0"
	}
}

// newFlagSet declares the command line. Flag names keep the historical
// camelCase spelling; they are bound to snake_case config keys.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("co2-sensor", pflag.ContinueOnError)
	fs.StringP("port", "p", DefaultPort(), "USB serial port, e.g. /dev/tty.usbmodem101 or COM3")
	fs.StringP("log", "l", "", "append output to this file instead of stdout")
	fs.BoolP("time", "t", false, "add a local timestamp to each record")
	fs.Float64P("sampleDuration", "s", 1, "minimum seconds between reported records")
	fs.StringP("format", "f", "json", "output format: json, csv (anything else prints plain text)")
	fs.StringP("config", "c", "", "YAML configuration file")
	fs.IntP("baud", "b", 115200, "serial baud rate")
	fs.Duration("timeout", 3*time.Second, "serial read timeout")
	fs.Bool("list", false, "list serial ports and exit")
	fs.Bool("json-strict", false, "write a valid JSON array without trailing comma")
	fs.Bool("strict-keys", false, "require CO2, HUM, TMP keys in sensor lines")
	fs.String("log-level", "info", "diagnostic log level: debug, info, warn, error")
	// errors and help are reported by the caller
	fs.Usage = func() {}
	fs.SetOutput(io.Discard)
	return fs
}

var flagKeys = map[string]string{
	"port":           "port",
	"log":            "log",
	"time":           "time",
	"sampleDuration": "sample_duration",
	"format":         "format",
	"baud":           "baud",
	"timeout":        "read_timeout",
	"list":           "list_ports",
	"json-strict":    "json_strict",
	"strict-keys":    "strict_keys",
	"log-level":      "logger.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.console", true)
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("storage.redis.stream", "co2-sensor:measurements")
	v.SetDefault("storage.redis.max_len", 10000)
	v.SetDefault("storage.webhook.timeout", 10*time.Second)
	v.SetDefault("storage.webhook.retry_count", 2)
	v.SetDefault("mqtt.topic", "sensors/{device}/measurement")
	v.SetDefault("mqtt.device", "co2-sensor")
	v.SetDefault("metrics.listen", ":9108")
}

// Load parses args and the optional config file. pflag.ErrHelp is returned
// unchanged when help was requested.
func Load(args []string) (*Config, *Loader, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	v := viper.New()
	setDefaults(v)
	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, nil, fmt.Errorf("bind flag %s: %w", flagName, err)
		}
	}

	v.SetEnvPrefix("CO2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	loader := &Loader{v: v}
	if path, _ := fs.GetString("config"); path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, nil, err
		}
		v.SetConfigFile(abs)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
		loader.path = abs
	}

	cfg, err := loader.unmarshal()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet().FlagUsages()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls callback whenever the config file is written or replaced. It
// requires a config file to have been loaded.
func (l *Loader) Watch(callback ConfigChangeCallback) error {
	if l.path == "" {
		return errors.New("no config file to watch")
	}

	var lastChangeTime time.Time
	const debounceInterval = 2 * time.Second

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		now := time.Now()
		if now.Sub(lastChangeTime) < debounceInterval {
			return
		}
		lastChangeTime = now

		logger.Info("config file changed: %s", e.Name)

		newCfg, err := l.unmarshal()
		if err != nil {
			logger.Error("failed to parse updated config: %v", err)
			return
		}
		if err := callback(newCfg); err != nil {
			logger.Error("failed to apply new config: %v", err)
			return
		}
		logger.Info("config updated and applied")
	})
	l.v.WatchConfig()
	return nil
}
