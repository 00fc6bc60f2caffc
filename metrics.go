// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics of the solver sessions
type Metrics struct {
	Registry   *prometheus.Registry
	Batches    *prometheus.CounterVec   // by mode and status
	Duration   *prometheus.HistogramVec // solve duration [s] by mode
	Iterations *prometheus.HistogramVec // solver iterations by mode
	Position   *prometheus.GaugeVec     // last position by mode and axis
	Satellites *prometheus.GaugeVec     // satellites used by mode
}

// NewMetrics creates metrics registered on a new registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopsl_batches_total",
				Help: "Measurement batches processed.",
			},
			[]string{"mode", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gopsl_solve_duration_seconds",
				Help:    "Time spent solving one batch.",
				Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
			},
			[]string{"mode"},
		),
		Iterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gopsl_solver_iterations",
				Help:    "Iterations of the final solver stage.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
			},
			[]string{"mode"},
		),
		Position: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gopsl_position_meters",
				Help: "Last position (ECEF for WLS, local XYZ for pseudolites).",
			},
			[]string{"mode", "axis"},
		),
		Satellites: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gopsl_satellites_used",
				Help: "Satellites used in the last solution.",
			},
			[]string{"mode"},
		),
	}
	m.Registry.MustRegister(m.Batches, m.Duration, m.Iterations, m.Position, m.Satellites)
	return m
}

// Observe records one processed batch
func (m *Metrics) Observe(r *Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	mode := r.Mode.String()
	m.Batches.WithLabelValues(mode, r.Status()).Inc()
	if r.Skipped {
		return
	}
	m.Duration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if !r.OK() {
		return
	}
	m.Iterations.WithLabelValues(mode).Observe(float64(r.Iter))
	m.Position.WithLabelValues(mode, "x").Set(r.Solution.Pos.X)
	m.Position.WithLabelValues(mode, "y").Set(r.Solution.Pos.Y)
	m.Position.WithLabelValues(mode, "z").Set(r.Solution.Pos.Z)
	m.Satellites.WithLabelValues(mode).Set(float64(len(r.Sats)))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
