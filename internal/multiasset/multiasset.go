// Package multiasset repeats the grid and plateau search on several symbols
// and measures how often the top plateau beats buy-and-hold.
package multiasset

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/grid"
	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/plateau"
	"github.com/jwtly10/trixplateau/internal/types"
)

var maLog = logging.New("multiasset")

type Config struct {
	Ranges   grid.Ranges
	Plateau  plateau.Config
	Backtest backtest.Config
	Workers  int
}

// Row is the outcome for one symbol. Plateau is nil when no centre survived;
// Pixel holds the metrics of the top centre's own cell.
type Row struct {
	Symbol         string
	Bars           int
	Plateau        *plateau.Candidate
	Pixel          backtest.Metrics
	AlphaCAGR      float64
	Benchmark      backtest.Metrics
	BeatsBenchmark bool
	Error          string
}

type Report struct {
	Rows      []Row
	Evaluated int
	FracBeat  float64
	// UnderperformanceFreq is 1 - FracBeat over evaluated symbols, and 1 when
	// none could be evaluated.
	UnderperformanceFreq float64
}

// Evaluate processes symbols in sorted order. A symbol that cannot be
// evaluated gets a row with Error set; only cancellation stops the loop.
func Evaluate(ctx context.Context, assets map[string][]types.Bar, cfg Config) (*Report, error) {
	symbols := make([]string, 0, len(assets))
	for s := range assets {
		symbols = append(symbols, s)
	}
	slices.Sort(symbols)

	cfg.Backtest.TradeStart = 0
	rows := make([]Row, 0, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := evaluate(ctx, symbol, assets[symbol], cfg)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			slog.Warn("Skipping symbol", "symbol", symbol, "error", err)
			row = Row{Symbol: symbol, Bars: len(assets[symbol]), Error: err.Error()}
		}
		rows = append(rows, row)
	}
	return summarize(rows), nil
}

func evaluate(ctx context.Context, symbol string, bars []types.Bar, cfg Config) (Row, error) {
	if err := types.Validate(bars); err != nil {
		return Row{}, err
	}
	g, err := grid.Evaluate(ctx, bars, cfg.Ranges, cfg.Backtest, grid.Options{Workers: cfg.Workers, Symbol: symbol})
	if err != nil {
		return Row{}, err
	}
	ranked, err := plateau.Score(g, cfg.Plateau)
	if err != nil {
		return Row{}, err
	}

	row := Row{Symbol: symbol, Bars: len(bars), Benchmark: g.Benchmark}
	if len(ranked) == 0 {
		maLog.Debug("No plateau", "symbol", symbol)
		return row, nil
	}
	top := ranked[0]
	row.Plateau = &top
	if cell, ok := g.Lookup(top.Center); ok {
		row.Pixel = cell.Metrics
		row.AlphaCAGR = cell.AlphaCAGR
		row.BeatsBenchmark = cell.BeatsBenchmark
	}
	maLog.Debug("Top plateau", "symbol", symbol, "triple", top.Center.String(), "score", top.Score)
	return row, nil
}

func summarize(rows []Row) *Report {
	r := &Report{Rows: rows, UnderperformanceFreq: 1}
	beats := 0
	for _, row := range rows {
		if row.Error != "" {
			continue
		}
		r.Evaluated++
		if row.BeatsBenchmark {
			beats++
		}
	}
	if r.Evaluated > 0 {
		r.FracBeat = float64(beats) / float64(r.Evaluated)
		r.UnderperformanceFreq = 1 - r.FracBeat
	}
	return r
}
