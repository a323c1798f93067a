package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// jobEvaluations counts evaluation cycles by outcome kind.
	jobEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostcart_job_evaluations_total",
			Help: "Total monitoring job evaluation cycles by outcome",
		},
		[]string{"outcome"},
	)

	// purchases counts finalized purchase attempts by transaction status.
	purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostcart_purchases_total",
			Help: "Total purchase attempts by transaction status",
		},
		[]string{"status"},
	)

	// authorizedCents accumulates the authorized amount in minor units.
	authorizedCents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostcart_authorized_cents_total",
			Help: "Total authorized amount in minor currency units",
		},
	)

	// ActiveJobs tracks the number of active monitoring jobs.
	ActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghostcart_active_jobs",
			Help: "Number of active monitoring jobs",
		},
	)
)

func init() {
	prometheus.MustRegister(jobEvaluations)
	prometheus.MustRegister(purchases)
	prometheus.MustRegister(authorizedCents)
	prometheus.MustRegister(ActiveJobs)
}
