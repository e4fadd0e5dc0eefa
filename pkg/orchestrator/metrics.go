package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Send outcomes.
const (
	OutcomeOK             = "ok"
	OutcomePreAbort       = "pre_abort"
	OutcomeTransportFault = "transport_fault"
	OutcomeError          = "error"
)

// Metrics holds the collectors updated by Execute.
type Metrics struct {
	Sends        *prometheus.CounterVec
	ScriptRuns   *prometheus.CounterVec
	SendDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hive_sends_total",
				Help: "Total number of request sends by outcome",
			},
			[]string{"outcome"},
		),
		ScriptRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hive_script_runs_total",
				Help: "Total number of script executions",
			},
			[]string{"phase", "level", "outcome"},
		),
		SendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hive_send_duration_seconds",
				Help:    "Duration of complete sends including scripts",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Sends, m.ScriptRuns, m.SendDuration)
	}
	return m
}
