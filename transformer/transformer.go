package transformer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/eddielth/co2-sensor/config"
	"github.com/eddielth/co2-sensor/logger"
	"github.com/eddielth/co2-sensor/sensor"
)

// Transformer runs a user script's transform(record) on each measurement.
// The script receives an object with string fields in measurement order and
// returns the object to report, or null to drop the record.
type Transformer struct {
	mutex  sync.Mutex
	script *script
}

type script struct {
	vm        *goja.Runtime
	transform goja.Callable
}

// New loads the script described by cfg. ScriptCode takes precedence over ScriptPath.
func New(cfg config.TransformerConfig) (*Transformer, error) {
	s, err := loadScript(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded transformer script %s", describe(cfg))
	return &Transformer{script: s}, nil
}

// Reload replaces the script. On error the previous script stays active.
func (t *Transformer) Reload(cfg config.TransformerConfig) error {
	s, err := loadScript(cfg)
	if err != nil {
		return err
	}
	t.mutex.Lock()
	t.script = s
	t.mutex.Unlock()
	logger.Info("reloaded transformer script %s", describe(cfg))
	return nil
}

// Transform applies the script to m. ok is false when the script returned
// null or undefined.
func (t *Transformer) Transform(m sensor.Measurement) (out sensor.Measurement, ok bool, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	s := t.script
	record := s.vm.NewObject()
	for _, f := range m.Fields() {
		if err := record.Set(f.Key, f.Value); err != nil {
			return sensor.Measurement{}, false, fmt.Errorf("set field %s: %w", f.Key, err)
		}
	}

	result, err := s.transform(goja.Undefined(), record)
	if err != nil {
		return sensor.Measurement{}, false, fmt.Errorf("execute transform failed: %w", err)
	}
	if goja.IsNull(result) || goja.IsUndefined(result) {
		return sensor.Measurement{}, false, nil
	}

	obj := result.ToObject(s.vm)
	for _, key := range obj.Keys() {
		out.Set(key, obj.Get(key).String())
	}
	return out, true, nil
}

func loadScript(cfg config.TransformerConfig) (*script, error) {
	code := cfg.ScriptCode
	if code == "" {
		if cfg.ScriptPath == "" {
			return nil, fmt.Errorf("no script code or script path provided")
		}
		b, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, fmt.Errorf("cannot load script file %s: %w", cfg.ScriptPath, err)
		}
		code = string(b)
	}

	vm := goja.New()
	registerHelpers(vm)

	if _, err := vm.RunString(code); err != nil {
		return nil, fmt.Errorf("run script failed: %w", err)
	}

	fn, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		return nil, fmt.Errorf("script does not define a 'transform' function")
	}

	return &script{vm: vm, transform: fn}, nil
}

// registerHelpers exposes Go helpers to scripts.
func registerHelpers(vm *goja.Runtime) {
	_ = vm.Set("log", func(msg string) {
		logger.Info("[JS] %s", msg)
	})

	_ = vm.Set("parseJSON", func(jsonStr string) interface{} {
		var data interface{}
		if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
			logger.Warn("parse JSON failed: %v", err)
			return nil
		}
		return data
	})

	_ = vm.Set("formatDate", func(timestamp int64, format string) string {
		if format == "" {
			format = "2006-01-02 15:04:05"
		}
		return time.Unix(timestamp, 0).Format(format)
	})

	_ = vm.Set("convertTemperature", convertTemperature)

	_ = vm.Set("validateRange", func(value, min, max float64) bool {
		return value >= min && value <= max
	})
}

// convertTemperature converts between C, F and K. Unknown units pass the value through.
func convertTemperature(value float64, fromUnit, toUnit string) float64 {
	var celsius float64
	switch strings.ToUpper(fromUnit) {
	case "C":
		celsius = value
	case "F":
		celsius = (value - 32) * 5 / 9
	case "K":
		celsius = value - 273.15
	default:
		return value
	}

	switch strings.ToUpper(toUnit) {
	case "F":
		return celsius*9/5 + 32
	case "K":
		return celsius + 273.15
	default:
		return celsius
	}
}

func describe(cfg config.TransformerConfig) string {
	if cfg.ScriptCode != "" {
		return "(inline)"
	}
	return cfg.ScriptPath
}
