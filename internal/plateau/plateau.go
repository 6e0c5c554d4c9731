// Package plateau ranks regions of the parameter grid by how consistently
// their neighbourhood outperforms, rather than by the best single cell.
package plateau

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/jwtly10/trixplateau/internal/grid"
	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/stats"
	"github.com/jwtly10/trixplateau/internal/strategy"
)

var plateauLog = logging.New("plateau")

// Shape is the neighbourhood size along each axis. Sizes are odd so the
// centre sits in the middle.
type Shape struct {
	Trigger int `yaml:"trigger" json:"trigger"`
	Trend   int `yaml:"trend" json:"trend"`
	Shift   int `yaml:"shift" json:"shift"`
}

type Weights struct {
	AlphaCAGR    float64 `yaml:"alpha_cagr" json:"alpha_cagr"`
	MaxDD        float64 `yaml:"max_dd" json:"max_dd"`
	Sharpe       float64 `yaml:"sharpe" json:"sharpe"`
	StdAlphaCAGR float64 `yaml:"std_alpha_cagr" json:"std_alpha_cagr"`
	BeatFraction float64 `yaml:"beat_fraction" json:"beat_fraction"`
}

type Config struct {
	Shape           Shape   `yaml:"shape"`
	Weights         Weights `yaml:"weights"`
	MinTrades       int     `yaml:"min_trades"`
	MinBeatFraction float64 `yaml:"min_beat_fraction"`
	// TopN caps the ranked output; 0 keeps every surviving centre.
	TopN int `yaml:"top_n"`
}

func DefaultConfig() Config {
	return Config{
		Shape: Shape{Trigger: 3, Trend: 3, Shift: 3},
		Weights: Weights{
			AlphaCAGR:    1,
			MaxDD:        1,
			Sharpe:       0.5,
			StdAlphaCAGR: 0.5,
			BeatFraction: 1,
		},
		MinTrades:       30,
		MinBeatFraction: 0.7,
		TopN:            5,
	}
}

func (c Config) Validate() error {
	for _, s := range []int{c.Shape.Trigger, c.Shape.Trend, c.Shape.Shift} {
		if s < 1 || s%2 == 0 {
			return fmt.Errorf("neighbourhood sizes must be odd and positive, got %v", c.Shape)
		}
	}
	w := c.Weights
	if w.AlphaCAGR < 0 || w.MaxDD < 0 || w.Sharpe < 0 || w.StdAlphaCAGR < 0 || w.BeatFraction < 0 {
		return fmt.Errorf("weights must not be negative: %+v", w)
	}
	if c.MinTrades <= 0 {
		return fmt.Errorf("min_trades must be positive, got %d", c.MinTrades)
	}
	if c.MinBeatFraction < 0 || c.MinBeatFraction > 1 {
		return fmt.Errorf("min_beat_fraction must be in [0, 1], got %g", c.MinBeatFraction)
	}
	if c.TopN < 0 {
		return fmt.Errorf("top_n must not be negative")
	}
	return nil
}

// Candidate is a plateau centre with its neighbourhood statistics. MedianMaxDD
// keeps the sign of the drawdown (<= 0).
type Candidate struct {
	Center          strategy.Triple
	Score           float64
	MedianAlphaCAGR float64
	MedianCAGR      float64
	MedianMaxDD     float64
	MedianSharpe    float64
	StdAlphaCAGR    float64
	BeatFraction    float64
	MedianTrades    float64
	CenterTrades    int
	Neighbors       []strategy.Triple
}

// components are the normalised terms of the composite score.
type components struct {
	alpha, absDD, sharpe, std, beat float64
}

func combine(w Weights, c components) float64 {
	return w.AlphaCAGR*c.alpha -
		w.MaxDD*c.absDD +
		w.Sharpe*c.sharpe -
		w.StdAlphaCAGR*c.std +
		w.BeatFraction*c.beat
}

// Score ranks the interior centres of g. Each statistic is normalised with
// stats.RobustNormalize across every interior centre before any rejection,
// then combined. Centres with too few trades of their own or across their
// neighbourhood, or whose neighbourhood beats the benchmark too rarely, are
// dropped. The ranking is by score, then lower alpha dispersion, then triple.
func Score(g *grid.Result, cfg Config) ([]Candidate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	centres := neighbourhoods(g, cfg.Shape)
	if len(centres) == 0 {
		slog.Warn("Grid has no interior centre for the neighbourhood", "shape", cfg.Shape,
			"trigger", len(g.Axes.Trigger), "trend", len(g.Axes.Trend), "shift", len(g.Axes.Shift))
		return nil, nil
	}

	alpha := make([]float64, len(centres))
	absDD := make([]float64, len(centres))
	sharpe := make([]float64, len(centres))
	std := make([]float64, len(centres))
	for i, c := range centres {
		alpha[i] = c.MedianAlphaCAGR
		absDD[i] = math.Abs(c.MedianMaxDD)
		sharpe[i] = c.MedianSharpe
		std[i] = c.StdAlphaCAGR
	}
	nAlpha := stats.RobustNormalize(alpha)
	nDD := stats.RobustNormalize(absDD)
	nSharpe := stats.RobustNormalize(sharpe)
	nStd := stats.RobustNormalize(std)

	out := make([]Candidate, 0, len(centres))
	for i, c := range centres {
		c.Score = combine(cfg.Weights, components{
			alpha:  nAlpha[i],
			absDD:  nDD[i],
			sharpe: nSharpe[i],
			std:    nStd[i],
			beat:   c.BeatFraction,
		})
		if reason := reject(c, cfg); reason != "" {
			plateauLog.Debug("Rejected centre", "triple", c.Center.String(), "reason", reason, "score", c.Score)
			continue
		}
		out = append(out, c)
	}

	slices.SortStableFunc(out, compare)
	slog.Info("Plateau scoring complete", "interior", len(centres), "accepted", len(out))

	if cfg.TopN > 0 && len(out) > cfg.TopN {
		out = out[:cfg.TopN]
	}
	return out, nil
}

func reject(c Candidate, cfg Config) string {
	switch {
	case c.CenterTrades < cfg.MinTrades:
		return "center trades below minimum"
	case c.MedianTrades < float64(cfg.MinTrades):
		return "neighbourhood trades below minimum"
	case c.BeatFraction < cfg.MinBeatFraction:
		return "beat fraction below minimum"
	}
	return ""
}

func compare(a, b Candidate) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	case a.StdAlphaCAGR < b.StdAlphaCAGR:
		return -1
	case a.StdAlphaCAGR > b.StdAlphaCAGR:
		return 1
	case a.Center.Less(b.Center):
		return -1
	case b.Center.Less(a.Center):
		return 1
	}
	return 0
}

// neighbourhoods collects the raw statistics of every interior centre that
// was simulated successfully, in grid order. Failed neighbours are left out
// of the medians and count as not beating the benchmark.
func neighbourhoods(g *grid.Result, shape Shape) []Candidate {
	ax := g.Axes
	hi, hj, hk := shape.Trigger/2, shape.Trend/2, shape.Shift/2
	size := shape.Trigger * shape.Trend * shape.Shift

	var out []Candidate
	for i := hi; i < len(ax.Trigger)-hi; i++ {
		for j := hj; j < len(ax.Trend)-hj; j++ {
			for k := hk; k < len(ax.Shift)-hk; k++ {
				centre := g.At(i, j, k)
				if centre.Failed() {
					continue
				}

				var alpha, cagr, dd, sharpe, trades []float64
				var neighbours []strategy.Triple
				beat := 0
				for di := -hi; di <= hi; di++ {
					for dj := -hj; dj <= hj; dj++ {
						for dk := -hk; dk <= hk; dk++ {
							c := g.At(i+di, j+dj, k+dk)
							neighbours = append(neighbours, c.Triple)
							if c.Failed() {
								continue
							}
							alpha = append(alpha, c.AlphaCAGR)
							cagr = append(cagr, c.Metrics.CAGR)
							dd = append(dd, math.Abs(c.Metrics.MaxDD))
							sharpe = append(sharpe, c.Metrics.Sharpe)
							trades = append(trades, float64(c.Metrics.NTrades))
							if c.BeatsBenchmark {
								beat++
							}
						}
					}
				}

				out = append(out, Candidate{
					Center:          centre.Triple,
					MedianAlphaCAGR: stats.Median(alpha),
					MedianCAGR:      stats.Median(cagr),
					MedianMaxDD:     -stats.Median(dd),
					MedianSharpe:    stats.Median(sharpe),
					StdAlphaCAGR:    stats.PopStdDev(alpha),
					BeatFraction:    float64(beat) / float64(size),
					MedianTrades:    stats.Median(trades),
					CenterTrades:    centre.Metrics.NTrades,
					Neighbors:       neighbours,
				})
			}
		}
	}
	return out
}
