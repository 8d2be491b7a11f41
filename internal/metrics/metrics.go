package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Deployment-run metrics, exported for node_exporter's textfile collector.
var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steward_run_total",
		Help: "Deployment runs by outcome.",
	}, []string{"outcome"})

	StepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steward_step_failures_total",
		Help: "Fatal step failures by step name.",
	}, []string{"step"})

	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steward_last_run_timestamp_seconds",
		Help: "Unix time the last deployment run finished.",
	})

	CertIssuanceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steward_cert_issuance_failures_total",
		Help: "Certificate issuance attempts that left the domain in cert-pending.",
	})
)
