package inventory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cmdb_reports_total",
		Help: "Hardware reports received, by disposition.",
	}, []string{"disposition"})

	approvalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cmdb_approvals_total",
		Help: "Approval decisions, by outcome.",
	}, []string{"outcome"})

	mergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cmdb_merge_duration_seconds",
		Help:    "Time spent merging a staged report into the canonical store.",
		Buckets: prometheus.DefBuckets,
	})

	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cmdb_pending_assets",
		Help: "Reports staged and waiting for a decision.",
	})
)

// outcome labels for approvalsTotal
const (
	outcomeApproved = "approved"
	outcomeRejected = "rejected"
	outcomeResolved = "already_resolved"
	outcomeFailed   = "failed"
)

func countReport(d Disposition, err error) {
	label := string(d)
	if err != nil && d == "" {
		label = "rejected"
	}
	reportsTotal.WithLabelValues(label).Inc()
}
