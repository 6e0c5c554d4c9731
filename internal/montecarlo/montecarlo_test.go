package montecarlo

import (
	"context"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	os.Exit(m.Run())
}

func waveBars(n int) []types.Bar {
	start := time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)
	for i := range bars {
		c := 100 + 0.05*float64(i) + 4*math.Sin(float64(i)/9)
		o := c - 0.2*math.Cos(float64(i)/5)
		bars[i] = types.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      o,
			High:      math.Max(o, c) + 0.5,
			Low:       math.Min(o, c) - 0.5,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func testBacktest() backtest.Config {
	cfg := backtest.DefaultConfig()
	cfg.Strategy.RegimeMode = strategy.RegimeNone
	return cfg
}

var testTriple = strategy.Triple{Trigger: 5, Trend: 30, Shift: 3}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Runs = 60
	cfg.SkipProb = 0.2
	return cfg
}

func TestSubSeeds(t *testing.T) {
	a := SubSeeds(42, 10)
	b := SubSeeds(42, 10)
	assert.Equal(t, a, b)
	assert.Equal(t, a[:5], SubSeeds(42, 5))
	assert.NotEqual(t, a, SubSeeds(43, 10))

	seen := map[uint64]bool{}
	for _, s := range a {
		seen[s] = true
	}
	assert.Len(t, seen, 10)
}

func TestStressTest_Reproducible(t *testing.T) {
	bars := waveBars(600)

	first, err := StressTest(context.Background(), bars, testTriple, testBacktest(), testConfig(), Options{Workers: 1})
	require.NoError(t, err)
	second, err := StressTest(context.Background(), bars, testTriple, testBacktest(), testConfig(), Options{Workers: 8})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.Summary.CAGR.Median, second.Summary.CAGR.Median)
	assert.Equal(t, first.Summary.CAGR.P5, second.Summary.CAGR.P5)
	assert.Equal(t, first.Summary.CAGR.P95, second.Summary.CAGR.P95)
}

func TestStressTest_DrawsWithinRanges(t *testing.T) {
	cfg := testConfig()
	rep, err := StressTest(context.Background(), waveBars(600), testTriple, testBacktest(), cfg, Options{Workers: 4})
	require.NoError(t, err)
	require.Len(t, rep.Runs, cfg.Runs)

	seeds := SubSeeds(cfg.Seed, cfg.Runs)
	delays := map[int]int{}
	for i, r := range rep.Runs {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, seeds[i], r.Seed)
		assert.GreaterOrEqual(t, r.SlippageMult, 0.5)
		assert.Less(t, r.SlippageMult, 2.0)
		assert.Contains(t, []int{0, 1}, r.DelayBars)
		delays[r.DelayBars]++
		assert.False(t, r.Failed())
	}
	assert.Len(t, delays, 2, "both delays are drawn over 60 runs")
	assert.Equal(t, 60, rep.Summary.CAGR.Count)
}

func TestStressTest_NoFrictionMatchesBaseRun(t *testing.T) {
	bars := waveBars(600)
	bt := testBacktest()
	cfg := Config{
		Runs:         5,
		Seed:         7,
		SlippageMult: FloatRange{Min: 1, Max: 1},
		DelayBars:    IntRange{Min: 0, Max: 0},
	}
	rep, err := StressTest(context.Background(), bars, testTriple, bt, cfg, Options{})
	require.NoError(t, err)

	base, err := backtest.Simulate(bars, testTriple, bt, backtest.Perturbation{})
	require.NoError(t, err)
	for _, r := range rep.Runs {
		assert.Equal(t, base.Metrics, r.Metrics)
		assert.Zero(t, r.Skipped)
	}
	assert.Zero(t, rep.Summary.CAGR.Std)

	bench := backtest.BuyAndHold(bars, bt.Frictions, bt.PeriodsPerYear, bt.RiskFreeRate)
	want := 0.0
	if base.Metrics.CAGR < bench.CAGR {
		want = 1
	}
	assert.Equal(t, want, rep.Summary.ProbUnderperform)
	assert.Equal(t, bench.CAGR, rep.Summary.BenchmarkCAGR)
}

func TestStressTest_FrictionOnlyHurts(t *testing.T) {
	bars := waveBars(600)
	bt := testBacktest()
	cfg := Config{
		Runs:         20,
		Seed:         1,
		SlippageMult: FloatRange{Min: 2, Max: 3},
		DelayBars:    IntRange{Min: 0, Max: 0},
	}
	rep, err := StressTest(context.Background(), bars, testTriple, bt, cfg, Options{})
	require.NoError(t, err)

	base, err := backtest.Simulate(bars, testTriple, bt, backtest.Perturbation{})
	require.NoError(t, err)
	require.Greater(t, base.Metrics.NTrades, 0)
	for _, r := range rep.Runs {
		assert.Equal(t, base.Metrics.NTrades, r.Metrics.NTrades)
		assert.Less(t, r.Metrics.TotalReturn, base.Metrics.TotalReturn)
	}
}

func TestStressTest_InsufficientDataFlagsEveryRun(t *testing.T) {
	cfg := testConfig()
	cfg.Runs = 10
	rep, err := StressTest(context.Background(), waveBars(20), testTriple, testBacktest(), cfg, Options{})
	require.NoError(t, err)

	for _, r := range rep.Runs {
		assert.True(t, r.Failed())
		assert.Equal(t, backtest.FlagInsufficientData, r.Metrics.Flag)
		assert.NotEmpty(t, r.Error)
	}
	assert.Equal(t, 10, rep.Summary.FailedRuns)
	assert.Equal(t, 1.0, rep.Summary.ProbUnderperform)
	assert.Zero(t, rep.Summary.CAGR.Count)
}

func TestStressTest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := StressTest(ctx, waveBars(600), testTriple, testBacktest(), testConfig(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	runs := []Run{
		{Metrics: backtest.Metrics{CAGR: 0.10, NTrades: 4}},
		{Metrics: backtest.Metrics{CAGR: 0.02, NTrades: 3}},
		{Metrics: backtest.Metrics{CAGR: 0.04, NTrades: 5}},
		{Metrics: backtest.Metrics{Flag: backtest.FlagFailed}},
	}
	s := Summarize(runs, 0.05)
	assert.Equal(t, 4, s.Runs)
	assert.Equal(t, 1, s.FailedRuns)
	assert.InDelta(t, 2.0/3, s.ProbUnderperform, 1e-12)
	assert.Equal(t, 0.04, s.CAGR.Median)
	assert.Equal(t, 4.0, s.NTrades.Median)
	assert.Equal(t, 3, s.TotalReturn.Count)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.Runs = 0 },
		func(c *Config) { c.SlippageMult = FloatRange{Min: 2, Max: 1} },
		func(c *Config) { c.SlippageMult.Min = 0 },
		func(c *Config) { c.SkipProb = 1 },
		func(c *Config) { c.DelayBars = IntRange{Min: -1, Max: 1} },
		func(c *Config) { c.Gap.SlipPerATR = -0.1 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestBootstrapTrades(t *testing.T) {
	_, err := BootstrapTrades([]float64{0.1, 0.2}, 100, 1)
	assert.ErrorIs(t, err, ErrTooFewTrades)

	flat := []float64{0.01, 0.01, 0.01, 0.01, 0.01}
	b, err := BootstrapTrades(flat, 50, 1)
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(1.01, 5)-1, b.TotalReturn.Median, 1e-12)
	assert.InDelta(t, 0, b.TotalReturn.Std, 1e-12)
	assert.Zero(t, b.ProbLoss)

	mixed := []float64{0.05, -0.03, 0.02, -0.08, 0.04, 0.01}
	a, err := BootstrapTrades(mixed, 200, 9)
	require.NoError(t, err)
	again, err := BootstrapTrades(mixed, 200, 9)
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Equal(t, 6, a.Trades)
	assert.Greater(t, a.ProbLoss, 0.0)
	assert.Less(t, a.ProbLoss, 1.0)
	assert.LessOrEqual(t, a.TotalReturn.P5, a.TotalReturn.P95)
}
