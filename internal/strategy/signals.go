package strategy

import (
	"fmt"

	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/types"
)

var signalLog = logging.New("signals")

type RegimeMode string

const (
	RegimePriceAboveSMA RegimeMode = "price_above_sma"
	RegimeSMASlope      RegimeMode = "sma_slope"
	RegimeEMACross      RegimeMode = "ema_cross"
	RegimeNone          RegimeMode = "none"
)

type EntryMode string

const (
	// EntryPullback needs the trend line below its shifted value plus the trigger cross.
	EntryPullback EntryMode = "pullback"
	// EntryMomentum only needs the trigger cross inside the regime.
	EntryMomentum EntryMode = "momentum"
)

type ExitMode string

const (
	ExitTrixCross    ExitMode = "trix_cross"
	ExitTrailingOnly ExitMode = "trailing_only"
	ExitTrixDeep     ExitMode = "trix_deep"
)

// Options are the rule settings that stay fixed across the parameter grid.
type Options struct {
	RegimeMode    RegimeMode `yaml:"regime_mode"`
	RegimePeriod  int        `yaml:"regime_period"`
	SlopePeriod   int        `yaml:"slope_period"`
	FastEMAPeriod int        `yaml:"fast_ema_period"`

	EntryMode     EntryMode `yaml:"entry_mode"`
	SetupLookback int       `yaml:"setup_lookback"`

	ExitMode          ExitMode `yaml:"exit_mode"`
	TrixExitThreshold float64  `yaml:"trix_exit_threshold"`

	ATRPeriod int `yaml:"atr_period"`
}

func DefaultOptions() Options {
	return Options{
		RegimeMode:    RegimePriceAboveSMA,
		RegimePeriod:  200,
		SlopePeriod:   10,
		FastEMAPeriod: 50,
		EntryMode:     EntryPullback,
		SetupLookback: 1,
		ExitMode:      ExitTrixCross,
		ATRPeriod:     14,
	}
}

func (o Options) Validate() error {
	switch o.RegimeMode {
	case RegimePriceAboveSMA, RegimeSMASlope, RegimeEMACross, RegimeNone:
	default:
		return fmt.Errorf("unknown regime mode %q", o.RegimeMode)
	}
	switch o.EntryMode {
	case EntryPullback, EntryMomentum:
	default:
		return fmt.Errorf("unknown entry mode %q", o.EntryMode)
	}
	switch o.ExitMode {
	case ExitTrixCross, ExitTrailingOnly, ExitTrixDeep:
	default:
		return fmt.Errorf("unknown exit mode %q", o.ExitMode)
	}
	if o.RegimePeriod < 1 || o.ATRPeriod < 1 {
		return fmt.Errorf("regime_period and atr_period must be positive")
	}
	if o.RegimeMode == RegimeSMASlope && o.SlopePeriod < 1 {
		return fmt.Errorf("slope_period must be positive for %s", RegimeSMASlope)
	}
	if o.RegimeMode == RegimeEMACross && o.FastEMAPeriod < 1 {
		return fmt.Errorf("fast_ema_period must be positive for %s", RegimeEMACross)
	}
	if o.SetupLookback < 0 {
		return fmt.Errorf("setup_lookback must not be negative")
	}
	return nil
}

// Lookback is the number of bars needed before every indicator the rule reads
// for t is defined. The trigger term covers three chained EMAs settling.
func (o Options) Lookback(t Triple) int {
	lb := max(t.Trend+t.Shift, 3*t.Trigger, o.ATRPeriod)
	switch o.RegimeMode {
	case RegimePriceAboveSMA, RegimeEMACross:
		lb = max(lb, o.RegimePeriod)
	case RegimeSMASlope:
		lb = max(lb, o.RegimePeriod+o.SlopePeriod)
	}
	if o.SetupLookback > 1 && o.EntryMode == EntryPullback {
		lb = max(lb, t.Trend+t.Shift+o.SetupLookback-1)
	}
	return lb
}

// Signals are aligned to bar close: Entry[t] and Exit[t] only use data up to and including bar t.
type Signals struct {
	Entry []bool
	Exit  []bool
	ATR   []float64
}

// Series caches the parts of the rule that do not depend on the triple
// so a grid only computes them once. It is read-only after construction.
type Series struct {
	bars   []types.Bar
	closes []float64
	regime []bool
	atr    []float64
	opts   Options
}

func NewSeries(bars []types.Bar, opts Options) *Series {
	closes := types.Closes(bars)
	return &Series{
		bars:   bars,
		closes: closes,
		regime: regimeFilter(closes, opts),
		atr:    ATRSeries(bars, opts.ATRPeriod),
		opts:   opts,
	}
}

func (s *Series) Bars() []types.Bar { return s.bars }
func (s *Series) ATR() []float64    { return s.atr }

func regimeFilter(closes []float64, opts Options) []bool {
	out := make([]bool, len(closes))
	switch opts.RegimeMode {
	case RegimeNone:
		for i := range out {
			out[i] = true
		}
	case RegimePriceAboveSMA:
		sma := SMASeries(closes, opts.RegimePeriod)
		for i := range out {
			out[i] = closes[i] > sma[i]
		}
	case RegimeSMASlope:
		sma := SMASeries(closes, opts.RegimePeriod)
		for i := opts.SlopePeriod; i < len(out); i++ {
			out[i] = sma[i] > sma[i-opts.SlopePeriod]
		}
	case RegimeEMACross:
		fast := EMASeries(closes, opts.FastEMAPeriod)
		slow := EMASeries(closes, opts.RegimePeriod)
		for i := range out {
			out[i] = fast[i] > slow[i]
		}
	}
	return out
}

// Signals evaluates the entry and exit rule for one triple. Comparisons
// against undefined (NaN) indicator values are false, so nothing fires during warm-up.
func (s *Series) Signals(t Triple) Signals {
	n := len(s.closes)
	trix := TRIXSeries(s.closes, t.Trigger)
	wma := WMASeries(s.closes, t.Trend)

	pullback := make([]bool, n)
	for i := t.Shift; i < n; i++ {
		pullback[i] = wma[i] < wma[i-t.Shift]
	}

	window := max(s.opts.SetupLookback, 1)
	entry := make([]bool, n)
	exit := make([]bool, n)
	for i := 1; i < n; i++ {
		crossUp := trix[i-1] <= 0 && trix[i] > 0

		setup := true
		if s.opts.EntryMode == EntryPullback {
			setup = false
			for j := max(0, i-window+1); j <= i; j++ {
				if pullback[j] {
					setup = true
					break
				}
			}
		}
		entry[i] = s.regime[i] && setup && crossUp

		switch s.opts.ExitMode {
		case ExitTrixCross:
			exit[i] = trix[i-1] > 0 && trix[i] <= 0
		case ExitTrixDeep:
			th := s.opts.TrixExitThreshold
			exit[i] = trix[i-1] > th && trix[i] <= th
		case ExitTrailingOnly:
		}

		if entry[i] {
			signalLog.Debug("Entry signal", "triple", t, "index", i, "trix", trix[i], "wma", wma[i])
		}
	}

	return Signals{Entry: entry, Exit: exit, ATR: s.atr}
}
