package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jwtly10/trixplateau/internal/grid"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "EUR_USD", cfg.Data.Symbol)
	assert.Equal(t, "2005-01-01", cfg.Data.Start)
	assert.Equal(t, "D", cfg.Data.Granularity, "unset keys keep their default")

	assert.Equal(t, strategy.RegimeSMASlope, cfg.Strategy.RegimeMode)
	assert.Equal(t, 3, cfg.Strategy.SetupLookback)
	assert.Equal(t, 50, cfg.Strategy.FastEMAPeriod)

	assert.Equal(t, grid.Range{Min: 15, Max: 31, Step: 2}, cfg.Grid.Trend)
	assert.Equal(t, 0.0005, cfg.Frictions.FeesPct)
	assert.Equal(t, 2.5, cfg.Risk.StopLossATR)
	assert.Equal(t, 60, cfg.Risk.TimeStopBars)
	assert.Equal(t, 260.0, cfg.PeriodsPerYear)

	assert.Equal(t, 20, cfg.Plateau.MinTrades)
	assert.Equal(t, 0.5, cfg.Plateau.Weights.StdAlphaCAGR)

	assert.Equal(t, 1300, cfg.WalkForward.TrainBars)
	assert.Equal(t, 10, cfg.WalkForward.EmbargoBars)
	assert.Equal(t, 0.0, cfg.WalkForward.MinBeatFraction)

	assert.Equal(t, 250, cfg.MonteCarlo.Runs)
	assert.Equal(t, uint64(7), cfg.MonteCarlo.Seed)
	assert.Equal(t, 3.0, cfg.MonteCarlo.SlippageMult.Max)
	assert.Equal(t, 2, cfg.MonteCarlo.DelayBars.Max)
	assert.Equal(t, 1.5, cfg.MonteCarlo.Gap.ATRMultiple)

	assert.Equal(t, 3, cfg.Verdict.MinWindows)
	require.NotNil(t, cfg.Verdict.MinStressP5CAGR)
	assert.Equal(t, 0.0, *cfg.Verdict.MinStressP5CAGR)

	assert.Equal(t, 4, cfg.Run.Workers)
	assert.Equal(t, "debug", cfg.Run.LogLevel)

	bt := cfg.Backtest()
	assert.Equal(t, cfg.Strategy, bt.Strategy)
	assert.Equal(t, 260.0, bt.PeriodsPerYear)
	assert.Zero(t, bt.TradeStart)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plateau:\n  min_trade: 5\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plateau:\n  min_trades: 0\n"), 0o644))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "min_trades")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Data.Symbol = "SPY"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	assert.Error(t, Save(path, nil))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	cases := map[string]func(*Config){
		"empty range":       func(c *Config) { c.Grid.Trigger = grid.Range{Min: 5, Max: 3} },
		"zero period":       func(c *Config) { c.Grid.Shift.Min = 0 },
		"even kernel":       func(c *Config) { c.Plateau.Shape.Shift = 2 },
		"negative weight":   func(c *Config) { c.Plateau.Weights.AlphaCAGR = -1 },
		"min trades":        func(c *Config) { c.Plateau.MinTrades = -3 },
		"fees":              func(c *Config) { c.Frictions.FeesPct = 0.5 },
		"slippage":          func(c *Config) { c.Frictions.SlippagePct = -0.001 },
		"skip probability":  func(c *Config) { c.MonteCarlo.SkipProb = 1.2 },
		"runs":              func(c *Config) { c.MonteCarlo.Runs = 0 },
		"overlapping tests": func(c *Config) { c.WalkForward.StepBars = 100 },
		"ceiling":           func(c *Config) { c.Verdict.MaxProbUnderperform = 0 },
		"source":            func(c *Config) { c.Data.Source = "ftp" },
		"regime":            func(c *Config) { c.Strategy.RegimeMode = "moon" },
		"log level":         func(c *Config) { c.Run.LogLevel = "loud" },
		"periods per year":  func(c *Config) { c.PeriodsPerYear = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
