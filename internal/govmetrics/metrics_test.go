package govmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// New registers every collector against the default Prometheus registry, so
// this package exercises exactly one *Metrics instance across all assertions
// to avoid a duplicate-registration panic.
func TestMetrics_NewRegistersAndRecordsEventBusActivity(t *testing.T) {
	m := New()
	require.NotNil(t, m)

	m.OnPublished("governor.decision")
	m.OnPublished("governor.decision")
	m.OnDropped("governor.decision")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventBusPublished.WithLabelValues("governor.decision")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventBusDropped.WithLabelValues("governor.decision")))

	m.EvaluationsTotal.WithLabelValues("send_email", "allow").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("send_email", "allow")))

	m.WalletBalance.WithLabelValues("agent-1").Set(99.5)
	assert.Equal(t, 99.5, testutil.ToFloat64(m.WalletBalance.WithLabelValues("agent-1")))
}
