package forge

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters FORGE exposes for operational visibility: how
// many atoms/blocks have moved through a chain, how OTS submissions have
// fared, and how many upgrade checks and confirmations have happened. It
// has no gauges and does not track the witness-level distribution.
// Metrics is optional everywhere it's threaded through — a nil *Metrics
// is never dereferenced by callers in this package.
type Metrics struct {
	AtomsRecorded    prometheus.Counter
	BlocksSealed     prometheus.Counter
	OTSUpgradeChecks prometheus.Counter
	OTSConfirmations prometheus.Counter
	otsSubmissions   *prometheus.CounterVec
}

// NewMetrics registers FORGE's metrics against reg and returns the handle.
// Pass prometheus.NewRegistry() for an isolated registry (tests, multiple
// chains in one process) or prometheus.DefaultRegisterer to expose them on
// the process-wide /metrics endpoint.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AtomsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "atoms_recorded_total",
			Help:      "Total atoms appended to the chain.",
		}),
		BlocksSealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "blocks_sealed_total",
			Help:      "Total Merkle blocks sealed.",
		}),
		OTSUpgradeChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "ots_upgrade_checks_total",
			Help:      "Total CheckOTSUpgrade calls performed.",
		}),
		OTSConfirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "ots_confirmations_total",
			Help:      "Total Merkle roots upgraded to the anchored level.",
		}),
		otsSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forge",
			Name:      "ots_submissions_total",
			Help:      "OTS submission attempts, partitioned by whether at least one calendar succeeded.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.AtomsRecorded, m.BlocksSealed, m.OTSUpgradeChecks, m.OTSConfirmations, m.otsSubmissions)
	return m
}

// ObserveOTSSubmission records one submission attempt's coarse outcome.
func (m *Metrics) ObserveOTSSubmission(anySucceeded bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if anySucceeded {
		outcome = "succeeded"
	}
	m.otsSubmissions.WithLabelValues(outcome).Inc()
}
