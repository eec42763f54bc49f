package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartgpt_retention_runs_total",
			Help: "Total number of retention sweeps by status.",
		},
		[]string{"status"},
	)
	retentionObjectsDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartgpt_retention_objects_deleted_total",
			Help: "Total number of stored objects deleted by retention, by root.",
		},
		[]string{"root"},
	)
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartgpt_integrity_runs_total",
			Help: "Total number of artifact integrity checks by status.",
		},
		[]string{"status"},
	)
	integrityMissingObjectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chartgpt_integrity_missing_objects_total",
			Help: "Total number of recorded artifacts or datasets found missing from the object store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		retentionObjectsDeletedTotal,
		integrityRunsTotal,
		integrityMissingObjectsTotal,
	)
}
