// Package metrics records Prometheus metrics for campaign stages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Simulation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// simulationsTotal counts finished simulations by outcome
	simulationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nroy_simulations_total",
			Help: "Total number of simulator runs by outcome",
		},
		[]string{"campaign", "outcome"},
	)

	// simulationAttempts counts individual attempts including retries
	simulationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nroy_simulation_attempts_total",
			Help: "Total number of simulator attempts including retries",
		},
		[]string{"campaign"},
	)

	// simulationDuration tracks wall time of one training point in seconds
	simulationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nroy_simulation_duration_seconds",
			Help:    "Simulator run duration in seconds, retries included",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		},
		[]string{"campaign"},
	)

	// emulatorFitDuration tracks hyperparameter optimisation time in seconds
	emulatorFitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nroy_emulator_fit_duration_seconds",
			Help:    "Emulator fit duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"campaign"},
	)

	// trainingPoints is the size of the last training set
	trainingPoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nroy_training_points",
			Help: "Number of observations in the last emulator training set",
		},
		[]string{"campaign"},
	)

	// nroyFraction is the share of query points not ruled out
	nroyFraction = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nroy_not_ruled_out_fraction",
			Help: "Fraction of query points not ruled out in the last analysis",
		},
		[]string{"campaign"},
	)
)

// RecordSimulation records one finished training point.
func RecordSimulation(campaign string, attempts int, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	simulationsTotal.WithLabelValues(campaign, outcome).Inc()
	simulationAttempts.WithLabelValues(campaign).Add(float64(attempts))
	simulationDuration.WithLabelValues(campaign).Observe(duration.Seconds())
}

// RecordFit records an emulator fit over n training points.
func RecordFit(campaign string, n int, duration time.Duration) {
	emulatorFitDuration.WithLabelValues(campaign).Observe(duration.Seconds())
	trainingPoints.WithLabelValues(campaign).Set(float64(n))
}

// RecordMatch records the not-ruled-out fraction of an analysis.
func RecordMatch(campaign string, fraction float64) {
	nroyFraction.WithLabelValues(campaign).Set(fraction)
}
