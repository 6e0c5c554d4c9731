// Package metrics exposes evaluation progress as Prometheus series.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

var (
	CellsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trixplateau_grid_cells_total", Help: "Grid cells simulated"},
		[]string{"symbol", "status"},
	)
	WindowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trixplateau_walkforward_windows_total", Help: "Walk-forward windows evaluated"},
		[]string{"symbol", "status"},
	)
	StressRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trixplateau_montecarlo_runs_total", Help: "Monte Carlo runs executed"},
		[]string{"symbol", "status"},
	)
	SimulationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trixplateau_simulation_seconds",
			Help:    "Wall time of a single backtest simulation",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(CellsTotal, WindowsTotal, StressRunsTotal, SimulationSeconds)
}

// Status maps a unit error to its status label.
func Status(err error) string {
	if err != nil {
		return StatusFailed
	}
	return StatusOK
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
