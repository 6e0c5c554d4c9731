// Package config exposes the strongly typed research configuration loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/grid"
	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/montecarlo"
	"github.com/jwtly10/trixplateau/internal/plateau"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/verdict"
	"github.com/jwtly10/trixplateau/internal/walkforward"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	SourceCSV   = "csv"
	SourceOanda = "oanda"
)

// Data says where bars come from. Start and End (2006-01-02) trim the series.
type Data struct {
	Symbol      string `yaml:"symbol"`
	Source      string `yaml:"source"`
	Path        string `yaml:"path"`
	Glob        string `yaml:"glob"`
	Granularity string `yaml:"granularity"`
	Count       int    `yaml:"count"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
}

// WalkForward adds the beat-fraction floor used while re-optimising on train
// periods, which is usually looser than the full-history one.
type WalkForward struct {
	walkforward.Config `yaml:",inline"`
	MinBeatFraction    float64 `yaml:"min_beat_fraction"`
}

// Run captures process-wide settings.
type Run struct {
	Workers        int    `yaml:"workers"`
	WindowParallel int    `yaml:"window_parallel"`
	OutputDir      string `yaml:"output_dir"`
	LogLevel       string `yaml:"log_level"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

type Config struct {
	Data           Data               `yaml:"data"`
	Strategy       strategy.Options   `yaml:"strategy"`
	Grid           grid.Ranges        `yaml:"grid"`
	Frictions      backtest.Frictions `yaml:"frictions"`
	Risk           backtest.Risk      `yaml:"risk"`
	PeriodsPerYear float64            `yaml:"periods_per_year"`
	RiskFreeRate   float64            `yaml:"risk_free_rate"`
	Plateau        plateau.Config     `yaml:"plateau"`
	WalkForward    WalkForward        `yaml:"walk_forward"`
	MonteCarlo     montecarlo.Config  `yaml:"monte_carlo"`
	Verdict        verdict.Thresholds `yaml:"verdict"`
	Run            Run                `yaml:"run"`
}

func Default() *Config {
	bt := backtest.DefaultConfig()
	return &Config{
		Data:     Data{Source: SourceCSV, Granularity: "D", Count: 5000},
		Strategy: bt.Strategy,
		Grid: grid.Ranges{
			Trigger: grid.Range{Min: 3, Max: 15},
			Trend:   grid.Range{Min: 10, Max: 50, Step: 2},
			Shift:   grid.Range{Min: 1, Max: 10},
		},
		Frictions:      bt.Frictions,
		PeriodsPerYear: bt.PeriodsPerYear,
		Plateau:        plateau.DefaultConfig(),
		WalkForward:    WalkForward{Config: walkforward.DefaultConfig()},
		MonteCarlo:     montecarlo.DefaultConfig(),
		Verdict:        verdict.DefaultThresholds(),
		Run:            Run{OutputDir: "output", LogLevel: "info"},
	}
}

// Backtest is the simulator configuration shared by every component.
func (c *Config) Backtest() backtest.Config {
	return backtest.Config{
		Strategy:       c.Strategy,
		Frictions:      c.Frictions,
		Risk:           c.Risk,
		PeriodsPerYear: c.PeriodsPerYear,
		RiskFreeRate:   c.RiskFreeRate,
	}
}

// Load decodes path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Default()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects anything that would make a run meaningless. It runs
// before any simulation so a bad file fails fast.
func (c *Config) Validate() error {
	var errs []error
	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	switch c.Data.Source {
	case SourceCSV, SourceOanda:
	default:
		check("data", fmt.Errorf("unknown source %q", c.Data.Source))
	}
	check("strategy", c.Strategy.Validate())
	check("grid", c.Grid.Validate())
	if c.Frictions.FeesPct < 0 || c.Frictions.FeesPct >= 0.1 || c.Frictions.SlippagePct < 0 || c.Frictions.SlippagePct >= 0.1 {
		check("frictions", fmt.Errorf("fees_pct and slippage_pct must be in [0, 0.1)"))
	}
	if c.Risk.StopLossATR < 0 || c.Risk.TrailingStopATR < 0 || c.Risk.TimeStopBars < 0 {
		check("risk", fmt.Errorf("stop settings must not be negative"))
	}
	if c.PeriodsPerYear <= 0 {
		check("periods_per_year", fmt.Errorf("must be positive, got %g", c.PeriodsPerYear))
	}
	check("plateau", c.Plateau.Validate())
	check("walk_forward", c.WalkForward.Validate())
	if c.WalkForward.MinBeatFraction < 0 || c.WalkForward.MinBeatFraction > 1 {
		check("walk_forward", fmt.Errorf("min_beat_fraction must be in [0, 1]"))
	}
	check("monte_carlo", c.MonteCarlo.Validate())
	check("verdict", c.Verdict.Validate())
	if c.Run.Workers < 0 || c.Run.WindowParallel < 0 {
		check("run", fmt.Errorf("workers must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Run.LogLevel); err != nil {
		check("run", err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
