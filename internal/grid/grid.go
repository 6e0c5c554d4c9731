// Package grid evaluates every parameter triple of a 3-D range.
package grid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/metrics"
	"github.com/jwtly10/trixplateau/internal/pool"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/types"
)

var gridLog = logging.New("grid")

// Range is an inclusive integer axis. Step defaults to 1.
type Range struct {
	Min  int `yaml:"min" json:"min"`
	Max  int `yaml:"max" json:"max"`
	Step int `yaml:"step,omitempty" json:"step,omitempty"`
}

func (r Range) step() int {
	if r.Step <= 0 {
		return 1
	}
	return r.Step
}

func (r Range) Values() []int {
	var out []int
	for v := r.Min; v <= r.Max; v += r.step() {
		out = append(out, v)
	}
	return out
}

func (r Range) Validate() error {
	if r.Min < 1 || r.Max < r.Min || r.Step < 0 {
		return fmt.Errorf("invalid range [%d, %d] step %d", r.Min, r.Max, r.Step)
	}
	return nil
}

type Ranges struct {
	Trigger Range `yaml:"trigger" json:"trigger"`
	Trend   Range `yaml:"trend" json:"trend"`
	Shift   Range `yaml:"shift" json:"shift"`
}

func (r Ranges) Validate() error {
	if err := r.Trigger.Validate(); err != nil {
		return fmt.Errorf("trigger: %w", err)
	}
	if err := r.Trend.Validate(); err != nil {
		return fmt.Errorf("trend: %w", err)
	}
	if err := r.Shift.Validate(); err != nil {
		return fmt.Errorf("shift: %w", err)
	}
	return nil
}

// Axes are the sorted values along each dimension of the tensor.
type Axes struct {
	Trigger []int
	Trend   []int
	Shift   []int
}

func (r Ranges) Axes() Axes {
	return Axes{Trigger: r.Trigger.Values(), Trend: r.Trend.Values(), Shift: r.Shift.Values()}
}

func (a Axes) Size() int { return len(a.Trigger) * len(a.Trend) * len(a.Shift) }

func (a Axes) index(i, j, k int) int {
	return (i*len(a.Trend)+j)*len(a.Shift) + k
}

func (a Axes) triple(idx int) strategy.Triple {
	k := idx % len(a.Shift)
	j := (idx / len(a.Shift)) % len(a.Trend)
	i := idx / (len(a.Shift) * len(a.Trend))
	return strategy.Triple{Trigger: a.Trigger[i], Trend: a.Trend[j], Shift: a.Shift[k]}
}

// Cell is one simulated triple with its benchmark-relative columns.
type Cell struct {
	Triple           strategy.Triple
	Metrics          backtest.Metrics
	AlphaCAGR        float64
	AlphaTotalReturn float64
	BeatsBenchmark   bool
}

func (c Cell) Failed() bool { return c.Metrics.Flag != "" }

// Result is the dense grid: every triple of the ranges has exactly one cell.
type Result struct {
	Axes      Axes
	Cells     []Cell
	Benchmark backtest.Metrics
}

func (r *Result) At(i, j, k int) *Cell {
	return &r.Cells[r.Axes.index(i, j, k)]
}

// Lookup finds the cell of t, if t lies on the grid.
func (r *Result) Lookup(t strategy.Triple) (*Cell, bool) {
	i, ok1 := position(r.Axes.Trigger, t.Trigger)
	j, ok2 := position(r.Axes.Trend, t.Trend)
	k, ok3 := position(r.Axes.Shift, t.Shift)
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}
	return r.At(i, j, k), true
}

// Failed counts the cells that could not be simulated.
func (r *Result) Failed() int {
	n := 0
	for _, c := range r.Cells {
		if c.Failed() {
			n++
		}
	}
	return n
}

// Best is the successful cell with the highest CAGR, ties to the lower triple.
func (r *Result) Best() (Cell, bool) {
	var best Cell
	found := false
	for _, c := range r.Cells {
		if c.Failed() {
			continue
		}
		if !found || c.Metrics.CAGR > best.Metrics.CAGR ||
			(c.Metrics.CAGR == best.Metrics.CAGR && c.Triple.Less(best.Triple)) {
			best, found = c, true
		}
	}
	return best, found
}

func position(vals []int, v int) (int, bool) {
	for i, x := range vals {
		if x == v {
			return i, true
		}
	}
	return 0, false
}

type Options struct {
	Workers int
	Symbol  string
}

// Evaluate simulates every triple in ranges over bars. Cells are independent
// and write only their own slot. A cell that fails keeps its flagged
// zero-trade metrics and the rest of the grid carries on; only cancellation
// aborts the evaluation.
func Evaluate(ctx context.Context, bars []types.Bar, ranges Ranges, cfg backtest.Config, opt Options) (*Result, error) {
	if err := ranges.Validate(); err != nil {
		return nil, err
	}
	axes := ranges.Axes()
	engine := backtest.NewEngine(bars, cfg)
	bench := backtest.BuyAndHold(bars[min(cfg.TradeStart, len(bars)):], cfg.Frictions, cfg.PeriodsPerYear, cfg.RiskFreeRate)

	slog.Info("Evaluating grid", "symbol", opt.Symbol, "cells", axes.Size(), "bars", len(bars))
	start := time.Now()

	cells, err := pool.Map(ctx, opt.Workers, axes.Size(), func(_ context.Context, idx int) (Cell, error) {
		t := axes.triple(idx)
		began := time.Now()
		res, simErr := engine.Run(t, backtest.Perturbation{})
		metrics.SimulationSeconds.Observe(time.Since(began).Seconds())
		metrics.CellsTotal.WithLabelValues(opt.Symbol, metrics.Status(simErr)).Inc()
		if simErr != nil {
			gridLog.Debug("Cell failed", "triple", t.String(), "error", simErr)
		}
		return newCell(t, res.Metrics, bench), nil
	})
	if err != nil {
		return nil, fmt.Errorf("grid evaluation interrupted: %w", err)
	}

	out := &Result{Axes: axes, Cells: cells, Benchmark: bench}
	slog.Info("Grid complete", "symbol", opt.Symbol, "cells", len(cells), "failed", out.Failed(), "elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

func newCell(t strategy.Triple, m backtest.Metrics, bench backtest.Metrics) Cell {
	return Cell{
		Triple:           t,
		Metrics:          m,
		AlphaCAGR:        m.CAGR - bench.CAGR,
		AlphaTotalReturn: m.TotalReturn - bench.TotalReturn,
		BeatsBenchmark:   m.Flag == "" && m.CAGR > bench.CAGR,
	}
}
