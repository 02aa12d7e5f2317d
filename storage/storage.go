package storage

import (
	"errors"
	"sync"

	"github.com/eddielth/co2-sensor/logger"
	"github.com/eddielth/co2-sensor/metrics"
	"github.com/eddielth/co2-sensor/sensor"
)

// StorageBackend receives every reported measurement
type StorageBackend interface {
	// Store persists or forwards one measurement
	Store(m sensor.Measurement) error
	// Close releases the backend
	Close() error
}

// Manager fans measurements out to several backends
type Manager struct {
	backends []StorageBackend
	mutex    sync.RWMutex
}

// NewManager creates a manager over backends
func NewManager(backends ...StorageBackend) *Manager {
	return &Manager{
		backends: backends,
	}
}

// Len returns the number of backends
func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.backends)
}

// Store writes to every backend. A failing backend does not stop the others;
// all failures are returned joined.
func (m *Manager) Store(meas sensor.Measurement) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var errs []error
	for _, backend := range m.backends {
		if err := backend.Store(meas); err != nil {
			metrics.StoreErrorsTotal.Inc()
			logger.Error("failed to store measurement: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all backends
func (m *Manager) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, backend := range m.backends {
		if err := backend.Close(); err != nil {
			logger.Error("failed to close storage backend: %v", err)
		}
	}
	m.backends = nil
}

// AddBackend adds a backend
func (m *Manager) AddBackend(backend StorageBackend) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.backends = append(m.backends, backend)
}
