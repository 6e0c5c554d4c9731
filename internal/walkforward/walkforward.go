// Package walkforward validates parameter selection on rolling out-of-sample windows.
package walkforward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/metrics"
	"github.com/jwtly10/trixplateau/internal/pool"
	"github.com/jwtly10/trixplateau/internal/stats"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/types"
)

var wfLog = logging.New("wf")

var ErrNoWindows = errors.New("series too short for a single walk-forward window")

// Config lengths are in bars.
type Config struct {
	TrainBars   int `yaml:"train_bars"`
	TestBars    int `yaml:"test_bars"`
	StepBars    int `yaml:"step_bars"`
	EmbargoBars int `yaml:"embargo_bars"`
}

// DefaultConfig is five years of training and one year of testing on daily bars.
func DefaultConfig() Config {
	return Config{TrainBars: 1260, TestBars: 252, StepBars: 252, EmbargoBars: 5}
}

func (c Config) Validate() error {
	if c.TrainBars <= 0 || c.TestBars <= 0 || c.StepBars <= 0 {
		return fmt.Errorf("train_bars, test_bars and step_bars must be positive")
	}
	if c.EmbargoBars < 0 {
		return fmt.Errorf("embargo_bars must not be negative")
	}
	if c.StepBars < c.TestBars {
		return fmt.Errorf("step_bars %d is shorter than test_bars %d, test windows would overlap", c.StepBars, c.TestBars)
	}
	return nil
}

// Bounds are half-open bar ranges [Start, End).
type Bounds struct {
	TrainStart, TrainEnd int
	TestStart, TestEnd   int
}

// Split lays windows over n bars. Train periods may overlap; test periods
// never do, and embargo bars separate each train end from its test start.
func Split(n int, cfg Config, embargo int) []Bounds {
	var out []Bounds
	for k := 0; ; k++ {
		b := Bounds{TrainStart: k * cfg.StepBars}
		b.TrainEnd = b.TrainStart + cfg.TrainBars
		b.TestStart = b.TrainEnd + embargo
		b.TestEnd = b.TestStart + cfg.TestBars
		if b.TestEnd > n {
			return out
		}
		out = append(out, b)
	}
}

type Window struct {
	Index int
	Bounds
	TrainFrom, TrainTo time.Time
	TestFrom, TestTo   time.Time

	Selection      Selection
	Result         backtest.Metrics
	Benchmark      backtest.Metrics
	AlphaCAGR      float64
	BeatsBenchmark bool
	Error          string
}

func (w Window) Failed() bool { return w.Result.Flag != "" }

type Report struct {
	Embargo int
	Windows []Window
	Summary Summary
}

type Options struct {
	// Parallel is the number of windows evaluated at once.
	Parallel int
	Symbol   string
}

// Run selects a triple on each train period with policy and trades it over
// the matching test period. Test simulations warm their indicators up on the
// bars just before the test period and only trade inside it. A window whose
// selection or simulation fails is recorded with a flag and the rest carry on.
func Run(ctx context.Context, bars []types.Bar, cfg Config, policy SelectionPolicy, bt backtest.Config, opt Options) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	embargo := cfg.EmbargoBars
	if lb := policy.Lookback(); lb > embargo {
		slog.Warn("Raising walk-forward embargo to the indicator lookback", "configured", embargo, "lookback", lb)
		embargo = lb
	}

	bounds := Split(len(bars), cfg, embargo)
	if len(bounds) == 0 {
		return nil, fmt.Errorf("%d bars, need %d: %w", len(bars), cfg.TrainBars+embargo+cfg.TestBars, ErrNoWindows)
	}
	slog.Info("Running walk-forward", "symbol", opt.Symbol, "windows", len(bounds), "embargo", embargo)

	windows, err := pool.Map(ctx, max(opt.Parallel, 1), len(bounds), func(ctx context.Context, i int) (Window, error) {
		w := evaluate(ctx, bars, bounds[i], policy, bt)
		w.Index = i
		if ctx.Err() != nil {
			return w, ctx.Err()
		}
		metrics.WindowsTotal.WithLabelValues(opt.Symbol, windowStatus(w)).Inc()
		slog.Info("Window complete", "window", i, "triple", w.Selection.Triple.String(),
			"method", w.Selection.Method, "cagr", w.Result.CAGR, "bh_cagr", w.Benchmark.CAGR, "flag", w.Result.Flag)
		return w, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk-forward interrupted: %w", err)
	}

	return &Report{Embargo: embargo, Windows: windows, Summary: Summarize(windows)}, nil
}

func windowStatus(w Window) string {
	if w.Failed() {
		return metrics.StatusFailed
	}
	return metrics.StatusOK
}

func evaluate(ctx context.Context, bars []types.Bar, b Bounds, policy SelectionPolicy, bt backtest.Config) Window {
	w := Window{
		Bounds:    b,
		TrainFrom: bars[b.TrainStart].Timestamp,
		TrainTo:   bars[b.TrainEnd-1].Timestamp,
		TestFrom:  bars[b.TestStart].Timestamp,
		TestTo:    bars[b.TestEnd-1].Timestamp,
	}
	test := bars[b.TestStart:b.TestEnd]
	w.Benchmark = backtest.BuyAndHold(test, bt.Frictions, bt.PeriodsPerYear, bt.RiskFreeRate)

	sel, err := policy.Select(ctx, bars[b.TrainStart:b.TrainEnd])
	if err != nil {
		return failed(w, backtest.FlagFailed, fmt.Errorf("selecting on train bars: %w", err))
	}
	w.Selection = sel

	res, err := simulateTest(bars, b, sel.Triple, bt)
	if err != nil {
		flag := backtest.FlagFailed
		if errors.Is(err, backtest.ErrInsufficientData) {
			flag = backtest.FlagInsufficientData
		}
		return failed(w, flag, err)
	}

	w.Result = res.Metrics
	w.AlphaCAGR = res.Metrics.CAGR - w.Benchmark.CAGR
	w.BeatsBenchmark = res.Metrics.CAGR > w.Benchmark.CAGR
	return w
}

// simulateTest trades t strictly inside the test bounds. Bars before the test
// start are only used to warm indicators up.
func simulateTest(bars []types.Bar, b Bounds, t strategy.Triple, bt backtest.Config) (*backtest.Results, error) {
	warm := min(bt.Strategy.Lookback(t), b.TestStart)
	cfg := bt
	cfg.TradeStart = warm
	return backtest.Simulate(bars[b.TestStart-warm:b.TestEnd], t, cfg, backtest.Perturbation{})
}

func failed(w Window, flag string, err error) Window {
	slog.Warn("Window failed", "train_start", w.TrainStart, "test_start", w.TestStart, "error", err)
	w.Result = backtest.Metrics{Flag: flag}
	w.AlphaCAGR = 0
	w.BeatsBenchmark = false
	w.Error = err.Error()
	return w
}

// Summary aggregates the windows. Medians and distributions cover the
// windows that produced a result. Failed windows count as zero-trade windows
// that did not beat the benchmark, so both fractions are over all windows.
type Summary struct {
	Windows       int     `json:"windows"`
	Evaluated     int     `json:"evaluated"`
	Failed        int     `json:"failed"`
	FracBeat      float64 `json:"frac_beat"`
	FracZeroTrade float64 `json:"frac_zero_trade"`

	MedianSharpe    float64 `json:"median_sharpe"`
	MedianCAGR      float64 `json:"median_cagr"`
	MedianMaxDD     float64 `json:"median_max_dd"`
	MedianAlphaCAGR float64 `json:"median_alpha_cagr"`

	Sharpe    stats.Distribution `json:"sharpe"`
	CAGR      stats.Distribution `json:"cagr"`
	MaxDD     stats.Distribution `json:"max_dd"`
	AlphaCAGR stats.Distribution `json:"alpha_cagr"`
}

func Summarize(windows []Window) Summary {
	s := Summary{Windows: len(windows)}
	var sharpe, cagr, dd, alpha []float64
	beat, zero := 0, 0
	for _, w := range windows {
		if w.Failed() {
			s.Failed++
			zero++
			continue
		}
		if w.Result.NTrades == 0 {
			zero++
		}
		if w.BeatsBenchmark {
			beat++
		}
		sharpe = append(sharpe, w.Result.Sharpe)
		cagr = append(cagr, w.Result.CAGR)
		dd = append(dd, w.Result.MaxDD)
		alpha = append(alpha, w.AlphaCAGR)
	}
	s.Evaluated = len(windows) - s.Failed
	if len(windows) > 0 {
		s.FracBeat = float64(beat) / float64(len(windows))
		s.FracZeroTrade = float64(zero) / float64(len(windows))
	}

	s.Sharpe = stats.Describe(sharpe)
	s.CAGR = stats.Describe(cagr)
	s.MaxDD = stats.Describe(dd)
	s.AlphaCAGR = stats.Describe(alpha)
	s.MedianSharpe = s.Sharpe.Median
	s.MedianCAGR = s.CAGR.Median
	s.MedianMaxDD = s.MaxDD.Median
	s.MedianAlphaCAGR = s.AlphaCAGR.Median
	return s
}
