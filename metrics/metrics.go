// Package metrics holds the Prometheus collectors for the reader loop and an
// optional HTTP endpoint exposing them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eddielth/co2-sensor/logger"
)

// Drop reasons used as the "reason" label of RecordsDroppedTotal.
const (
	ReasonMalformed = "malformed"
	ReasonInvalid   = "invalid"
	ReasonThrottled = "throttled"
	ReasonFiltered  = "filtered"
)

var (
	LinesReadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "co2_sensor_lines_read_total",
		Help: "Total number of lines read from the sensor",
	})
	ReadTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "co2_sensor_read_timeouts_total",
		Help: "Total number of serial reads that timed out",
	})
	RecordsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "co2_sensor_records_dropped_total",
		Help: "Total number of records dropped, by reason",
	}, []string{"reason"})
	RecordsEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "co2_sensor_records_emitted_total",
		Help: "Total number of records written by the reporter",
	})
	StoreErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "co2_sensor_store_errors_total",
		Help: "Total number of failed writes to storage backends",
	})
	LastMeasurement = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "co2_sensor_measurement",
		Help: "Last emitted numeric value per field",
	}, []string{"field"})

	registerOnce sync.Once
)

func init() {
	Register()
}

// Register registers all collectors with the default registry.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			LinesReadTotal,
			ReadTimeoutsTotal,
			RecordsDroppedTotal,
			RecordsEmittedTotal,
			StoreErrorsTotal,
			LastMeasurement,
		)
	})
}

// Server exposes /metrics over HTTP.
type Server struct {
	srv *http.Server
}

// NewServer builds a metrics server listening on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		logger.Info("metrics endpoint listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped: %v", err)
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
