// Package export writes the research tables as CSV with stable column names
// and a JSON summary document.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/jwtly10/trixplateau/internal/account"
	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/grid"
	"github.com/jwtly10/trixplateau/internal/montecarlo"
	"github.com/jwtly10/trixplateau/internal/multiasset"
	"github.com/jwtly10/trixplateau/internal/plateau"
	"github.com/jwtly10/trixplateau/internal/stats"
	"github.com/jwtly10/trixplateau/internal/verdict"
	"github.com/jwtly10/trixplateau/internal/walkforward"
)

var metricColumns = []string{
	"total_return", "cagr", "ann_vol", "sharpe", "max_dd", "calmar",
	"n_trades", "win_rate", "avg_trade_ret", "exposure",
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
func formatI(i int) string     { return strconv.Itoa(i) }
func formatB(b bool) string    { return strconv.FormatBool(b) }
func formatT(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func metricValues(m backtest.Metrics) []string {
	return []string{
		formatF(m.TotalReturn), formatF(m.CAGR), formatF(m.AnnVol), formatF(m.Sharpe),
		formatF(m.MaxDD), formatF(m.Calmar), formatI(m.NTrades), formatF(m.WinRate),
		formatF(m.AvgTradeRet), formatF(m.Exposure),
	}
}

func prefixed(prefix string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return out
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// table writes a header and rows and reports the first write error.
func table(w io.Writer, header []string, rows func(emit func([]string) error) error) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := rows(cw.Write); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

var GridHeader = concat(
	[]string{"run_id", "symbol", "trigger", "trend", "shift"},
	metricColumns,
	[]string{"bh_cagr", "bh_sharpe", "bh_max_dd", "bh_total_return", "alpha_cagr", "alpha_total_return", "beats_bh", "flag"},
)

func WriteGrid(w io.Writer, runID, symbol string, g *grid.Result) error {
	bh := g.Benchmark
	return table(w, GridHeader, func(emit func([]string) error) error {
		for _, c := range g.Cells {
			row := concat(
				[]string{runID, symbol, formatI(c.Triple.Trigger), formatI(c.Triple.Trend), formatI(c.Triple.Shift)},
				metricValues(c.Metrics),
				[]string{
					formatF(bh.CAGR), formatF(bh.Sharpe), formatF(bh.MaxDD), formatF(bh.TotalReturn),
					formatF(c.AlphaCAGR), formatF(c.AlphaTotalReturn), formatB(c.BeatsBenchmark), c.Metrics.Flag,
				},
			)
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}

var PlateauHeader = []string{
	"run_id", "symbol", "rank", "trigger", "trend", "shift", "score",
	"nb_alpha_cagr_median", "nb_cagr_median", "nb_max_dd_median", "nb_sharpe_median",
	"nb_alpha_cagr_std", "nb_beat_fraction", "nb_trades_median", "center_trades",
}

func WritePlateaus(w io.Writer, runID, symbol string, candidates []plateau.Candidate) error {
	return table(w, PlateauHeader, func(emit func([]string) error) error {
		for i, c := range candidates {
			if err := emit([]string{
				runID, symbol, formatI(i + 1),
				formatI(c.Center.Trigger), formatI(c.Center.Trend), formatI(c.Center.Shift),
				formatF(c.Score), formatF(c.MedianAlphaCAGR), formatF(c.MedianCAGR), formatF(c.MedianMaxDD),
				formatF(c.MedianSharpe), formatF(c.StdAlphaCAGR), formatF(c.BeatFraction),
				formatF(c.MedianTrades), formatI(c.CenterTrades),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

var WindowHeader = concat(
	[]string{"run_id", "symbol", "window", "train_start", "train_end", "test_start", "test_end",
		"selection_method", "trigger", "trend", "shift"},
	prefixed("oos_", metricColumns),
	[]string{"oos_bh_cagr", "oos_alpha_cagr", "oos_beats_bh", "flag", "error"},
)

func WriteWindows(w io.Writer, runID, symbol string, windows []walkforward.Window) error {
	return table(w, WindowHeader, func(emit func([]string) error) error {
		for _, win := range windows {
			t := win.Selection.Triple
			row := concat(
				[]string{
					runID, symbol, formatI(win.Index),
					formatT(win.TrainFrom), formatT(win.TrainTo), formatT(win.TestFrom), formatT(win.TestTo),
					win.Selection.Method, formatI(t.Trigger), formatI(t.Trend), formatI(t.Shift),
				},
				metricValues(win.Result),
				[]string{
					formatF(win.Benchmark.CAGR), formatF(win.AlphaCAGR), formatB(win.BeatsBenchmark),
					win.Result.Flag, win.Error,
				},
			)
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}

var StressRunHeader = concat(
	[]string{"run_id", "symbol", "run", "seed", "slippage_mult", "delay_bars", "skipped_entries"},
	metricColumns,
	[]string{"flag", "error"},
)

func WriteStressRuns(w io.Writer, runID, symbol string, runs []montecarlo.Run) error {
	return table(w, StressRunHeader, func(emit func([]string) error) error {
		for _, r := range runs {
			row := concat(
				[]string{
					runID, symbol, formatI(r.Index), strconv.FormatUint(r.Seed, 10),
					formatF(r.SlippageMult), formatI(r.DelayBars), formatI(r.Skipped),
				},
				metricValues(r.Metrics),
				[]string{r.Metrics.Flag, r.Error},
			)
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}

var DistributionHeader = []string{"run_id", "symbol", "metric", "count", "median", "p5", "p25", "p75", "p95", "mean", "std"}

// WriteStressSummary writes one row per stressed metric.
func WriteStressSummary(w io.Writer, runID, symbol string, s montecarlo.Summary) error {
	dists := []struct {
		name string
		d    stats.Distribution
	}{
		{"cagr", s.CAGR}, {"sharpe", s.Sharpe}, {"max_dd", s.MaxDD},
		{"total_return", s.TotalReturn}, {"n_trades", s.NTrades},
	}
	return table(w, DistributionHeader, func(emit func([]string) error) error {
		for _, d := range dists {
			if err := emit([]string{
				runID, symbol, d.name, formatI(d.d.Count), formatF(d.d.Median), formatF(d.d.P5),
				formatF(d.d.P25), formatF(d.d.P75), formatF(d.d.P95), formatF(d.d.Mean), formatF(d.d.Std),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

var VerdictHeader = []string{"run_id", "symbol", "decision", "check", "value", "op", "threshold", "passed"}

func WriteVerdict(w io.Writer, runID, symbol string, v verdict.Verdict) error {
	return table(w, VerdictHeader, func(emit func([]string) error) error {
		for _, c := range v.Checks {
			if err := emit([]string{
				runID, symbol, string(v.Decision), c.Name, formatF(c.Value), c.Op, formatF(c.Threshold), formatB(c.Passed),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

var TradeHeader = []string{
	"run_id", "symbol", "trade", "entry_index", "exit_index", "entry_time", "exit_time",
	"entry_price", "exit_price", "stop_loss", "return", "exit_reason",
}

func WriteTrades(w io.Writer, runID, symbol string, trades []account.Trade) error {
	return table(w, TradeHeader, func(emit func([]string) error) error {
		for _, t := range trades {
			if err := emit([]string{
				runID, symbol, formatI(t.ID), formatI(t.EntryIndex), formatI(t.ExitIndex),
				formatT(t.EntryTime), formatT(t.ExitTime), formatF(t.EntryPrice), formatF(t.ExitPrice),
				formatF(t.StopLoss), formatF(t.Return), string(t.ExitReason),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

var MultiAssetHeader = concat(
	[]string{"run_id", "symbol", "bars", "trigger", "trend", "shift", "score"},
	metricColumns,
	[]string{"alpha_cagr", "bh_cagr", "beats_bh", "nb_cagr_median", "nb_alpha_cagr_median",
		"nb_sharpe_median", "nb_beat_fraction", "error"},
)

// WriteMultiAsset leaves the plateau columns empty for symbols without one.
func WriteMultiAsset(w io.Writer, runID string, rep *multiasset.Report) error {
	return table(w, MultiAssetHeader, func(emit func([]string) error) error {
		for _, r := range rep.Rows {
			plat := make([]string, 4)
			nb := make([]string, 4)
			if p := r.Plateau; p != nil {
				plat = []string{formatI(p.Center.Trigger), formatI(p.Center.Trend), formatI(p.Center.Shift), formatF(p.Score)}
				nb = []string{formatF(p.MedianCAGR), formatF(p.MedianAlphaCAGR), formatF(p.MedianSharpe), formatF(p.BeatFraction)}
			}
			row := concat(
				[]string{runID, r.Symbol, formatI(r.Bars)},
				plat,
				metricValues(r.Pixel),
				[]string{formatF(r.AlphaCAGR), formatF(r.Benchmark.CAGR), formatB(r.BeatsBenchmark)},
				nb,
				[]string{r.Error},
			)
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}
