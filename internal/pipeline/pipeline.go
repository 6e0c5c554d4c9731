// Package pipeline chains the research stages for one symbol: full-history
// grid, plateau ranking, walk-forward validation, stress test and verdict.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/config"
	"github.com/jwtly10/trixplateau/internal/export"
	"github.com/jwtly10/trixplateau/internal/grid"
	"github.com/jwtly10/trixplateau/internal/montecarlo"
	"github.com/jwtly10/trixplateau/internal/plateau"
	"github.com/jwtly10/trixplateau/internal/types"
	"github.com/jwtly10/trixplateau/internal/verdict"
	"github.com/jwtly10/trixplateau/internal/walkforward"
)

var ErrNothingSimulable = errors.New("no grid cell could be simulated")

type Report struct {
	Symbol string
	Bars   []types.Bar

	Grid      *grid.Result
	Plateaus  []plateau.Candidate
	Selection walkforward.Selection
	// Base is the unperturbed simulation of the selected triple.
	Base *backtest.Results

	// WalkForward is nil when the history is too short for a single window.
	WalkForward *walkforward.Report
	Stress      *montecarlo.Report
	Bootstrap   *montecarlo.Bootstrap
	Verdict     verdict.Verdict
}

// Run executes every stage on bars. The triple that is stress-tested is the
// top plateau centre, or the best-CAGR cell when no centre survives. A
// history too short for walk-forward yields an empty summary and so a NO-GO.
func Run(ctx context.Context, cfg *config.Config, symbol string, bars []types.Bar) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := types.Validate(bars); err != nil {
		return nil, err
	}
	start := time.Now()
	bt := cfg.Backtest()
	rep := &Report{Symbol: symbol, Bars: bars}

	g, err := grid.Evaluate(ctx, bars, cfg.Grid, bt, grid.Options{Workers: cfg.Run.Workers, Symbol: symbol})
	if err != nil {
		return nil, err
	}
	rep.Grid = g

	rep.Plateaus, err = plateau.Score(g, cfg.Plateau)
	if err != nil {
		return nil, err
	}
	sel, err := selectTriple(g, rep.Plateaus)
	if err != nil {
		return nil, err
	}
	rep.Selection = sel
	slog.Info("Selected triple", "symbol", symbol, "triple", sel.Triple.String(), "method", sel.Method, "plateaus", len(rep.Plateaus))

	rep.Base, err = backtest.NewEngine(bars, bt).Run(sel.Triple, backtest.Perturbation{})
	if err != nil {
		return nil, fmt.Errorf("simulating %s: %w", sel.Triple, err)
	}

	wfPlateau := cfg.Plateau
	wfPlateau.MinBeatFraction = cfg.WalkForward.MinBeatFraction
	policy := &walkforward.PlateauPolicy{
		Ranges:   cfg.Grid,
		Plateau:  wfPlateau,
		Backtest: bt,
		Workers:  cfg.Run.Workers,
		Symbol:   symbol,
	}
	wf, err := walkforward.Run(ctx, bars, cfg.WalkForward.Config, policy, bt,
		walkforward.Options{Parallel: cfg.Run.WindowParallel, Symbol: symbol})
	switch {
	case errors.Is(err, walkforward.ErrNoWindows):
		slog.Warn("Skipping walk-forward", "symbol", symbol, "error", err)
	case err != nil:
		return nil, err
	default:
		rep.WalkForward = wf
	}

	rep.Stress, err = montecarlo.StressTest(ctx, bars, sel.Triple, bt, cfg.MonteCarlo,
		montecarlo.Options{Workers: cfg.Run.Workers, Symbol: symbol})
	if err != nil {
		return nil, err
	}

	if cfg.MonteCarlo.BootstrapRuns > 0 {
		b, err := montecarlo.BootstrapTrades(rep.Base.TradeReturns(), cfg.MonteCarlo.BootstrapRuns, cfg.MonteCarlo.Seed)
		if err != nil {
			slog.Warn("Skipping trade bootstrap", "symbol", symbol, "error", err)
		} else {
			rep.Bootstrap = &b
		}
	}

	rep.Verdict = verdict.Aggregate(rep.WalkForwardSummary(), rep.Stress.Summary, cfg.Verdict)
	slog.Info("Pipeline complete", "symbol", symbol, "verdict", rep.Verdict.String(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return rep, nil
}

func selectTriple(g *grid.Result, ranked []plateau.Candidate) (walkforward.Selection, error) {
	if len(ranked) > 0 {
		return walkforward.Selection{Triple: ranked[0].Center, Method: walkforward.MethodPlateau, Score: ranked[0].Score}, nil
	}
	best, ok := g.Best()
	if !ok {
		return walkforward.Selection{}, ErrNothingSimulable
	}
	slog.Warn("No plateau survived rejection, falling back to the best cell", "triple", best.Triple.String())
	return walkforward.Selection{Triple: best.Triple, Method: walkforward.MethodFallback}, nil
}

func (r *Report) WalkForwardSummary() walkforward.Summary {
	if r.WalkForward == nil {
		return walkforward.Summary{}
	}
	return r.WalkForward.Summary
}

// Summary builds the JSON document for runID.
func (r *Report) Summary(runID string) export.Summary {
	s := export.Summary{
		RunID:        runID,
		Symbol:       r.Symbol,
		Generated:    time.Now().UTC(),
		Bars:         len(r.Bars),
		Benchmark:    r.Grid.Benchmark,
		GridCells:    len(r.Grid.Cells),
		FailedCells:  r.Grid.Failed(),
		PlateauCount: len(r.Plateaus),
		WalkForward:  r.WalkForwardSummary(),
		MonteCarlo:   r.Stress.Summary,
		Bootstrap:    r.Bootstrap,
		Verdict:      r.Verdict,
	}
	if len(r.Bars) > 0 {
		s.From, s.To = r.Bars[0].Timestamp, r.Bars[len(r.Bars)-1].Timestamp
	}
	if best, ok := r.Grid.Best(); ok {
		s.BestPixel = &export.Best{Triple: best.Triple, Metrics: best.Metrics, AlphaCAGR: best.AlphaCAGR}
	}
	if len(r.Plateaus) > 0 {
		top := r.Plateaus[0]
		b := &export.Best{Triple: top.Center, Score: top.Score}
		if cell, ok := r.Grid.Lookup(top.Center); ok {
			b.Metrics, b.AlphaCAGR = cell.Metrics, cell.AlphaCAGR
		}
		s.TopPlateau = b
	}
	if r.WalkForward != nil {
		s.Embargo = r.WalkForward.Embargo
	}
	return s
}

// Export writes every table and the summary into dir.
func (r *Report) Export(dir *export.Dir) error {
	id, sym := dir.RunID, r.Symbol
	files := []struct {
		name  string
		write func(w io.Writer) error
	}{
		{"grid.csv", func(w io.Writer) error { return export.WriteGrid(w, id, sym, r.Grid) }},
		{"plateaus.csv", func(w io.Writer) error { return export.WritePlateaus(w, id, sym, r.Plateaus) }},
		{"trades.csv", func(w io.Writer) error { return export.WriteTrades(w, id, sym, r.Base.Trades) }},
		{"walkforward.csv", func(w io.Writer) error {
			var windows []walkforward.Window
			if r.WalkForward != nil {
				windows = r.WalkForward.Windows
			}
			return export.WriteWindows(w, id, sym, windows)
		}},
		{"stress_runs.csv", func(w io.Writer) error { return export.WriteStressRuns(w, id, sym, r.Stress.Runs) }},
		{"stress_summary.csv", func(w io.Writer) error { return export.WriteStressSummary(w, id, sym, r.Stress.Summary) }},
		{"verdict.csv", func(w io.Writer) error { return export.WriteVerdict(w, id, sym, r.Verdict) }},
		{"summary.json", func(w io.Writer) error { return export.WriteSummary(w, r.Summary(id)) }},
	}
	for _, f := range files {
		if err := dir.Write(f.name, f.write); err != nil {
			return err
		}
	}
	return nil
}
