package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_CountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordCacheLookup("aggregated", true)
	r.RecordCacheLookup("aggregated", false)
	r.RecordCacheLookup("aggregated", false)
	r.ObserveSourceLatency("dexscreener", 20*time.Millisecond, false)
	r.RecordMessageSent("update")
	r.SetActiveClients(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("aggregated", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("aggregated", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sourceErrors.WithLabelValues("dexscreener")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messagesSent.WithLabelValues("update")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.activeClients))
}

func TestRecorder_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
