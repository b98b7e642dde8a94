package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/custody-service/custody_service/pkg/metrics"
)

func TestDatabaseConnectionsGaugeTracksPoolStates(t *testing.T) {
	metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(5)
	metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(3)
	metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(2)

	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.DatabaseConnectionsGauge.WithLabelValues("open")))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.DatabaseConnectionsGauge.WithLabelValues("idle")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.DatabaseConnectionsGauge.WithLabelValues("in_use")))
}
