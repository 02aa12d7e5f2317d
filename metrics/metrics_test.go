package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreRegistered(t *testing.T) {
	Register()

	before := testutil.ToFloat64(RecordsDroppedTotal.WithLabelValues(ReasonThrottled))
	RecordsDroppedTotal.WithLabelValues(ReasonThrottled).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RecordsDroppedTotal.WithLabelValues(ReasonThrottled)))

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "co2_sensor_records_dropped_total"))
}
