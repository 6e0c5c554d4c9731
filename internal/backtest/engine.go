package backtest

import (
	"errors"
	"fmt"
	"math"

	"github.com/jwtly10/trixplateau/internal/account"
	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/types"
)

var simLog = logging.New("sim")

var ErrInsufficientData = errors.New("insufficient data for indicator warm-up")

// Frictions are applied to fill prices, never to signal prices.
type Frictions struct {
	FeesPct     float64 `yaml:"fees_pct"`
	SlippagePct float64 `yaml:"slippage_pct"`
}

// Risk holds the optional volatility-scaled exits. Zero disables each one.
type Risk struct {
	StopLossATR     float64 `yaml:"stop_loss_atr"`
	TrailingStopATR float64 `yaml:"trailing_stop_atr"`
	TimeStopBars    int     `yaml:"time_stop_bars"`
}

type Config struct {
	Strategy       strategy.Options
	Frictions      Frictions
	Risk           Risk
	PeriodsPerYear float64
	RiskFreeRate   float64

	// TradeStart is the first bar that counts. Earlier bars only warm indicators
	// up: no signal before it is acted on and the equity curve starts there.
	TradeStart int
}

func DefaultConfig() Config {
	return Config{
		Strategy:       strategy.DefaultOptions(),
		Frictions:      Frictions{FeesPct: 0.001, SlippagePct: 0.002},
		PeriodsPerYear: 252,
	}
}

// Engine simulates the rule over one price series. It never mutates the bars
// and holds no per-run state, so one Engine can serve concurrent runs.
type Engine struct {
	series *strategy.Series
	cfg    Config
}

func NewEngine(bars []types.Bar, cfg Config) *Engine {
	return &Engine{
		series: strategy.NewSeries(bars, cfg.Strategy),
		cfg:    cfg,
	}
}

// Simulate runs one triple over bars.
func Simulate(bars []types.Bar, t strategy.Triple, cfg Config, p Perturbation) (*Results, error) {
	return NewEngine(bars, cfg).Run(t, p)
}

// Prepare checks the series is long enough for t and computes its signals.
func (e *Engine) Prepare(t strategy.Triple) (strategy.Signals, error) {
	if err := t.Validate(); err != nil {
		return strategy.Signals{}, err
	}
	n := len(e.series.Bars())
	need := e.cfg.Strategy.Lookback(t) + 2
	if n-e.cfg.TradeStart < 2 || n < need {
		return strategy.Signals{}, fmt.Errorf("triple %s needs %d bars, have %d (trading from %d): %w",
			t, need, n, e.cfg.TradeStart, ErrInsufficientData)
	}
	return e.series.Signals(t), nil
}

// Run simulates t under p. On insufficient data it returns the flagged
// zero-trade result alongside the error.
func (e *Engine) Run(t strategy.Triple, p Perturbation) (*Results, error) {
	sig, err := e.Prepare(t)
	if err != nil {
		flag := FlagFailed
		if errors.Is(err, ErrInsufficientData) {
			flag = FlagInsufficientData
		}
		return &Results{Triple: t, Metrics: Metrics{Flag: flag}}, err
	}
	res := e.Execute(sig, p)
	res.Triple = t
	return res, nil
}

// Execute walks the bars once. Signals known at the close of bar i-1 fill at
// the open of bar i; stops may fill inside bar i. Stop levels only use the
// ATR known at the open of the bar they are set on.
func (e *Engine) Execute(sig strategy.Signals, p Perturbation) *Results {
	bars := e.series.Bars()
	n := len(bars)
	start := e.cfg.TradeStart
	fees := e.cfg.Frictions.FeesPct
	risk := e.cfg.Risk
	atr := sig.ATR
	entries := p.entries(sig.Entry)

	acc := account.NewAccount()
	equity := make([]float64, n-start)
	inPos := make([]bool, n-start)
	equity[0] = 1

	for i := start + 1; i < n; i++ {
		bar := bars[i]
		slip := e.slippage(i, p)

		if acc.InPosition() {
			pos := acc.Position()
			// Protective stops first, then the time stop, then the exit signal.
			fill, reason, exit := acc.StopFill(bar)
			if !exit {
				switch {
				case risk.TimeStopBars > 0 && pos.BarsHeld >= risk.TimeStopBars:
					fill, reason, exit = bar.Open, account.ExitTimeStop, true
				case sig.Exit[i-1]:
					fill, reason, exit = bar.Open, account.ExitSignal, true
				}
			}

			if exit {
				acc.Close(i, bar.Timestamp, fill*(1-slip), fees, reason)
			} else {
				acc.Mark(bar.Close)
				pos.BarsHeld++
				acc.UpdateTrailing(bar.High, atr[i-1], risk.TrailingStopATR)
			}
		} else if i-1 >= start && entries[i-1] {
			fill := bar.Open * (1 + slip)
			stop := 0.0
			if risk.StopLossATR > 0 && !math.IsNaN(atr[i-1]) {
				stop = fill - atr[i-1]*risk.StopLossATR
			}
			acc.Open(i, bar.Timestamp, fill, fees, stop)

			if stopFill, reason, hit := acc.StopFill(bar); hit {
				acc.Close(i, bar.Timestamp, stopFill*(1-slip), fees, reason)
			} else {
				acc.Mark(bar.Close)
				acc.UpdateTrailing(bar.High, atr[i-1], risk.TrailingStopATR)
			}
		}

		equity[i-start] = acc.Equity
		inPos[i-start] = acc.InPosition()
	}

	if trade, ok := acc.CloseAtEnd(n-1, bars[n-1].Timestamp); ok {
		simLog.Debug("Position open at end of data", "id", trade.ID, "return", trade.Return)
	}

	trades := acc.Trades()
	return &Results{
		Metrics:  computeMetrics(equity, inPos, trades, e.cfg.PeriodsPerYear, e.cfg.RiskFreeRate),
		Trades:   trades,
		Equity:   equity,
		Position: inPos,
	}
}

// slippage is the fill slippage at bar i including any gap penalty.
func (e *Engine) slippage(i int, p Perturbation) float64 {
	slip := e.cfg.Frictions.SlippagePct * p.multiplier()
	if !p.Gap.Enabled() || i < 1 {
		return slip
	}
	bars := e.series.Bars()
	extra := p.Gap.ExtraSlippage(bars[i].Open, bars[i-1].Close, e.series.ATR()[i-1])
	if extra > 0 {
		simLog.Debug("Gap penalty", "index", i, "open", bars[i].Open, "prevClose", bars[i-1].Close, "extra", extra)
	}
	return slip + extra
}
