package backtest

import "math"

// GapModel adds slippage when a fill bar opens far from the previous close.
// The extra slippage grows with the gap in ATR units beyond ATRMultiple.
type GapModel struct {
	ATRMultiple  float64 `yaml:"atr_multiple"`
	SlipPerATR   float64 `yaml:"slip_per_atr"`
	MaxExtraSlip float64 `yaml:"max_extra_slip"`
}

func (g GapModel) Enabled() bool {
	return g.ATRMultiple > 0 && g.SlipPerATR > 0
}

// ExtraSlippage uses the ATR of the previous bar, which is known at the open.
func (g GapModel) ExtraSlippage(open, prevClose, prevATR float64) float64 {
	if !g.Enabled() || math.IsNaN(prevATR) || prevATR <= 0 {
		return 0
	}
	ratio := math.Abs(open-prevClose) / prevATR
	if ratio <= g.ATRMultiple {
		return 0
	}
	extra := g.SlipPerATR * (ratio - g.ATRMultiple)
	if g.MaxExtraSlip > 0 {
		extra = math.Min(extra, g.MaxExtraSlip)
	}
	return extra
}

// Perturbation is one draw of randomised execution friction. The zero value
// leaves the simulation unperturbed.
type Perturbation struct {
	// SlippageMult scales the base slippage; values <= 0 mean 1.
	SlippageMult float64
	// DelayBars postpones every entry by this many bars.
	DelayBars int
	// SkipEntry marks entry signals (by signal bar) that are never filled.
	SkipEntry []bool
	Gap       GapModel
}

func (p Perturbation) multiplier() float64 {
	if p.SlippageMult <= 0 {
		return 1
	}
	return p.SlippageMult
}

func (p Perturbation) entries(signals []bool) []bool {
	if p.DelayBars <= 0 && p.SkipEntry == nil {
		return signals
	}
	out := make([]bool, len(signals))
	for i, s := range signals {
		if !s || (i < len(p.SkipEntry) && p.SkipEntry[i]) {
			continue
		}
		if j := i + p.DelayBars; j < len(out) {
			out[j] = true
		}
	}
	return out
}
