package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts workflow transitions by entity, edge and outcome.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_transitions_total",
		Help: "Workflow status transitions processed",
	}, []string{"entity", "from", "to", "outcome"})

	// TransitionDuration observes the latency of the authoritative
	// transition commit, excluding the ledger call.
	TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_transition_duration_seconds",
		Help:    "Latency of transition commits",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity"})

	// LedgerSubmissionsTotal counts best-effort ledger submissions by result.
	LedgerSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_ledger_submissions_total",
		Help: "Attestation submissions to the external ledger",
	}, []string{"kind", "outcome"})

	// DocumentsIssuedTotal counts documents created by request completion.
	DocumentsIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_documents_issued_total",
		Help: "Documents issued from completed requests",
	}, []string{"document_type"})
)
