package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RuntimeMetrics records library lifecycle events. All methods are safe on
// a nil receiver so callers never have to branch on enablement.
type RuntimeMetrics struct {
	initTotal        prometheus.Counter
	terminateTotal   prometheus.Counter
	terminatePasses  prometheus.Histogram
	atcloseCallbacks prometheus.Counter
	phasePending     *prometheus.GaugeVec
}

// NewRuntimeMetrics creates Prometheus-backed runtime metrics.
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRuntimeMetrics() *RuntimeMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()
	return &RuntimeMetrics{
		initTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "carton_init_total",
			Help: "Total number of library initializations",
		}),
		terminateTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "carton_terminate_total",
			Help: "Total number of completed library terminations",
		}),
		terminatePasses: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "carton_terminate_passes",
			Help:    "Fixpoint passes needed for a termination to settle",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
		}),
		atcloseCallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "carton_atclose_callbacks_total",
			Help: "Total number of atclose callbacks invoked",
		}),
		phasePending: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "carton_phase_pending",
			Help: "Pending count reported by each termination phase on the last pass",
		}, []string{"phase"}),
	}
}

// RecordInit counts a completed library initialization.
func (m *RuntimeMetrics) RecordInit() {
	if m == nil {
		return
	}
	m.initTotal.Inc()
}

// RecordTerminate counts a completed termination and its pass count.
func (m *RuntimeMetrics) RecordTerminate(passes int) {
	if m == nil {
		return
	}
	m.terminateTotal.Inc()
	m.terminatePasses.Observe(float64(passes))
}

// RecordAtcloseCallback counts one invoked atclose callback.
func (m *RuntimeMetrics) RecordAtcloseCallback() {
	if m == nil {
		return
	}
	m.atcloseCallbacks.Inc()
}

// RecordPhasePending tracks the pending count a phase reported.
func (m *RuntimeMetrics) RecordPhasePending(phase string, pending int) {
	if m == nil {
		return
	}
	m.phasePending.WithLabelValues(phase).Set(float64(pending))
}
