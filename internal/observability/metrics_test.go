package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alaskacg/tongass-listings/internal/config"
)

func TestMetrics_RecordsAndReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics("test", reg)
	require.NoError(t, err)

	m.Transition("activate")
	m.SyncOutcome(SyncSynced)
	m.SyncOutcome(SyncHubUnavailable)
	m.ObserveHubCall("ok", 20*time.Millisecond)
	m.Upload(false)
	m.Expired(3)
	m.Expired(0)

	again, err := NewMetrics("test", reg)
	require.NoError(t, err)
	again.Transition("activate")

	assert.Equal(t, 2.0, counterValue(t, reg, "test_listing_transitions_total", "activate"))
	assert.Equal(t, 1.0, counterValue(t, reg, "test_ecosystem_sync_total", SyncHubUnavailable))
	assert.Equal(t, 1.0, counterValue(t, reg, "test_image_uploads_total", "failed"))
	assert.Equal(t, 3.0, counterValue(t, reg, "test_listings_expired_total", ""))
}

// counterValue finds a counter sample by family name and first label value.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := metric.GetLabel()
			if label == "" || (len(labels) > 0 && labels[0].GetValue() == label) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s{%s} not found", name, label)
	return 0
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("reject")
		m.SyncOutcome(SyncDropped)
		m.ObserveHubCall("error", time.Second)
		m.Upload(true)
		m.Expired(1)
	})
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
