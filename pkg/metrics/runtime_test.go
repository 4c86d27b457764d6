package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRuntimeMetricsDisabled(t *testing.T) {
	mu.Lock()
	registry = nil
	mu.Unlock()

	m := NewRuntimeMetrics()
	assert.Nil(t, m)

	// Nil receivers must be safe.
	m.RecordInit()
	m.RecordTerminate(3)
	m.RecordAtcloseCallback()
	m.RecordPhasePending("cache", 1)
}

func TestRuntimeMetricsRecording(t *testing.T) {
	InitRegistry()
	m := NewRuntimeMetrics()
	require.NotNil(t, m)

	m.RecordInit()
	m.RecordInit()
	m.RecordTerminate(2)
	m.RecordAtcloseCallback()
	m.RecordPhasePending("freelist", 4)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.initTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.terminateTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.atcloseCallbacks))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.phasePending.WithLabelValues("freelist")))
}
