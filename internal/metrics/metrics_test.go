package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)

	m.Deliveries.WithLabelValues("fired").Inc()
	m.Retries.Inc()
	m.HTTPRequests.WithLabelValues("GET", "/health", "200").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("fired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["group_notifier_deliveries_total"])
	assert.True(t, names["group_notifier_http_requests_total"])
	assert.True(t, names["go_goroutines"])
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(NewRegistry())
		New(NewRegistry())
	})
}
