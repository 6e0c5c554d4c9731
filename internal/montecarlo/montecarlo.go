// Package montecarlo re-runs one triple under randomised execution friction.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/metrics"
	"github.com/jwtly10/trixplateau/internal/pool"
	"github.com/jwtly10/trixplateau/internal/stats"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/types"
)

var mcLog = logging.New("mc")

// PCG stream constants. Runs use their index as the stream.
const (
	seedStream      = 0x5eed5eed
	bootstrapStream = 0xb0075742
)

type FloatRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type IntRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type Config struct {
	Runs          int               `yaml:"runs"`
	Seed          uint64            `yaml:"seed"`
	SlippageMult  FloatRange        `yaml:"slippage_mult"`
	SkipProb      float64           `yaml:"skip_prob"`
	DelayBars     IntRange          `yaml:"delay_bars"`
	Gap           backtest.GapModel `yaml:"gap"`
	BootstrapRuns int               `yaml:"bootstrap_runs"`
}

func DefaultConfig() Config {
	return Config{
		Runs:          500,
		Seed:          42,
		SlippageMult:  FloatRange{Min: 0.5, Max: 2.0},
		SkipProb:      0.02,
		DelayBars:     IntRange{Min: 0, Max: 1},
		Gap:           backtest.GapModel{ATRMultiple: 2, SlipPerATR: 0.001, MaxExtraSlip: 0.005},
		BootstrapRuns: 500,
	}
}

func (c Config) Validate() error {
	if c.Runs <= 0 {
		return fmt.Errorf("runs must be positive, got %d", c.Runs)
	}
	if c.SlippageMult.Min <= 0 || c.SlippageMult.Max < c.SlippageMult.Min {
		return fmt.Errorf("invalid slippage multiplier range [%g, %g]", c.SlippageMult.Min, c.SlippageMult.Max)
	}
	if c.SkipProb < 0 || c.SkipProb >= 1 {
		return fmt.Errorf("skip_prob must be in [0, 1), got %g", c.SkipProb)
	}
	if c.DelayBars.Min < 0 || c.DelayBars.Max < c.DelayBars.Min {
		return fmt.Errorf("invalid delay range [%d, %d]", c.DelayBars.Min, c.DelayBars.Max)
	}
	if c.Gap.ATRMultiple < 0 || c.Gap.SlipPerATR < 0 || c.Gap.MaxExtraSlip < 0 {
		return fmt.Errorf("gap model parameters must not be negative")
	}
	if c.BootstrapRuns < 0 {
		return fmt.Errorf("bootstrap_runs must not be negative")
	}
	return nil
}

// Run is one perturbed simulation and the draws that produced it.
type Run struct {
	Index        int
	Seed         uint64
	SlippageMult float64
	DelayBars    int
	Skipped      int
	Metrics      backtest.Metrics
	Error        string
}

func (r Run) Failed() bool { return r.Metrics.Flag != "" }

type Summary struct {
	Runs             int                `json:"runs"`
	FailedRuns       int                `json:"failed_runs"`
	CAGR             stats.Distribution `json:"cagr"`
	Sharpe           stats.Distribution `json:"sharpe"`
	MaxDD            stats.Distribution `json:"max_dd"`
	TotalReturn      stats.Distribution `json:"total_return"`
	NTrades          stats.Distribution `json:"n_trades"`
	BenchmarkCAGR    float64            `json:"benchmark_cagr"`
	ProbUnderperform float64            `json:"prob_underperform"`
}

type Report struct {
	Triple    strategy.Triple
	Runs      []Run
	Summary   Summary
	Benchmark backtest.Metrics
}

type Options struct {
	Workers int
	Symbol  string
}

// SubSeeds derives one seed per run from the master seed. The derivation is
// sequential and happens before any run is dispatched.
func SubSeeds(master uint64, n int) []uint64 {
	r := rand.New(rand.NewPCG(master, seedStream))
	out := make([]uint64, n)
	for i := range out {
		out[i] = r.Uint64()
	}
	return out
}

// StressTest runs t cfg.Runs times over bars. Each run owns a generator
// seeded from its sub-seed and draws, in order, a slippage multiplier, an
// entry delay and one skip decision per entry signal. The gap model applies
// to every run. Output does not depend on the number of workers.
func StressTest(ctx context.Context, bars []types.Bar, t strategy.Triple, bt backtest.Config, cfg Config, opt Options) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := backtest.NewEngine(bars, bt)
	bench := backtest.BuyAndHold(bars[min(bt.TradeStart, len(bars)):], bt.Frictions, bt.PeriodsPerYear, bt.RiskFreeRate)
	seeds := SubSeeds(cfg.Seed, cfg.Runs)
	sig, prepErr := engine.Prepare(t)
	failFlag := backtest.FlagFailed
	if errors.Is(prepErr, backtest.ErrInsufficientData) {
		failFlag = backtest.FlagInsufficientData
	}
	if prepErr != nil {
		slog.Warn("Every stress run will be flagged", "triple", t.String(), "error", prepErr)
	}

	slog.Info("Running Monte Carlo stress test", "symbol", opt.Symbol, "triple", t.String(), "runs", cfg.Runs, "seed", cfg.Seed)
	start := time.Now()

	runs, err := pool.Map(ctx, opt.Workers, cfg.Runs, func(_ context.Context, i int) (Run, error) {
		run := Run{Index: i, Seed: seeds[i]}
		if prepErr != nil {
			run.Metrics = backtest.Metrics{Flag: failFlag}
			run.Error = prepErr.Error()
			metrics.StressRunsTotal.WithLabelValues(opt.Symbol, metrics.StatusFailed).Inc()
			return run, nil
		}

		p := draw(rand.New(rand.NewPCG(seeds[i], uint64(i))), cfg, sig.Entry)
		run.SlippageMult, run.DelayBars = p.SlippageMult, p.DelayBars
		for _, s := range p.SkipEntry {
			if s {
				run.Skipped++
			}
		}

		began := time.Now()
		res := engine.Execute(sig, p)
		metrics.SimulationSeconds.Observe(time.Since(began).Seconds())
		metrics.StressRunsTotal.WithLabelValues(opt.Symbol, metrics.StatusOK).Inc()

		run.Metrics = res.Metrics
		mcLog.Debug("Run complete", "run", i, "mult", run.SlippageMult, "delay", run.DelayBars,
			"skipped", run.Skipped, "cagr", res.Metrics.CAGR)
		return run, nil
	})
	if err != nil {
		return nil, fmt.Errorf("stress test interrupted: %w", err)
	}

	summary := Summarize(runs, bench.CAGR)
	slog.Info("Stress test complete", "symbol", opt.Symbol, "runs", len(runs), "failed", summary.FailedRuns,
		"median_cagr", summary.CAGR.Median, "prob_underperform", summary.ProbUnderperform,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &Report{Triple: t, Runs: runs, Summary: summary, Benchmark: bench}, nil
}

func draw(r *rand.Rand, cfg Config, entries []bool) backtest.Perturbation {
	p := backtest.Perturbation{Gap: cfg.Gap}
	p.SlippageMult = cfg.SlippageMult.Min + r.Float64()*(cfg.SlippageMult.Max-cfg.SlippageMult.Min)
	p.DelayBars = cfg.DelayBars.Min + r.IntN(cfg.DelayBars.Max-cfg.DelayBars.Min+1)

	if cfg.SkipProb > 0 {
		p.SkipEntry = make([]bool, len(entries))
		for i, e := range entries {
			if e && r.Float64() < cfg.SkipProb {
				p.SkipEntry[i] = true
			}
		}
	}
	return p
}

// Summarize aggregates successful runs. ProbUnderperform is the share of
// them whose CAGR is below the benchmark's, and 1 when every run failed.
func Summarize(runs []Run, benchCAGR float64) Summary {
	s := Summary{Runs: len(runs), BenchmarkCAGR: benchCAGR, ProbUnderperform: 1}
	var cagr, sharpe, dd, total, trades []float64
	under := 0
	for _, r := range runs {
		if r.Failed() {
			s.FailedRuns++
			continue
		}
		m := r.Metrics
		cagr = append(cagr, m.CAGR)
		sharpe = append(sharpe, m.Sharpe)
		dd = append(dd, m.MaxDD)
		total = append(total, m.TotalReturn)
		trades = append(trades, float64(m.NTrades))
		if m.CAGR < benchCAGR {
			under++
		}
	}
	if len(cagr) > 0 {
		s.ProbUnderperform = float64(under) / float64(len(cagr))
	}
	s.CAGR = stats.Describe(cagr)
	s.Sharpe = stats.Describe(sharpe)
	s.MaxDD = stats.Describe(dd)
	s.TotalReturn = stats.Describe(total)
	s.NTrades = stats.Describe(trades)
	return s
}
