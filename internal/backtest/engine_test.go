package backtest

import (
	"log/slog"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jwtly10/trixplateau/internal/account"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	os.Exit(m.Run())
}

func TimeFromString(timeStr string) (t time.Time) {
	t, _ = time.Parse(time.RFC3339, timeStr)
	return
}

// mkBars builds daily bars from opens and closes with a one point range either side.
func mkBars(opens, closes []float64) []types.Bar {
	start := TimeFromString("2024-01-01T00:00:00Z")
	bars := make([]types.Bar, len(opens))
	for i := range opens {
		bars[i] = types.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      opens[i],
			High:      math.Max(opens[i], closes[i]) + 1,
			Low:       math.Min(opens[i], closes[i]) - 1,
			Close:     closes[i],
		}
	}
	return bars
}

func waveBars(n int) []types.Bar {
	start := TimeFromString("2010-01-04T00:00:00Z")
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

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Strategy.RegimeMode = strategy.RegimeNone
	cfg.Strategy.RegimePeriod = 50
	return cfg
}

func signals(n int, entries, exits []int) strategy.Signals {
	sig := strategy.Signals{Entry: make([]bool, n), Exit: make([]bool, n), ATR: make([]float64, n)}
	for i := range sig.ATR {
		sig.ATR[i] = math.NaN()
	}
	for _, i := range entries {
		sig.Entry[i] = true
	}
	for _, i := range exits {
		sig.Exit[i] = true
	}
	return sig
}

func TestExecute_NextOpenFillsAndFrictions(t *testing.T) {
	opens := []float64{100, 101, 104, 108, 107}
	closes := []float64{100, 103, 106, 107, 109}
	bars := mkBars(opens, closes)
	cfg := testConfig()
	fee, slip := cfg.Frictions.FeesPct, cfg.Frictions.SlippagePct

	res := NewEngine(bars, cfg).Execute(signals(len(bars), []int{0}, []int{2}), Perturbation{})

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, 1, trade.EntryIndex, "signal at close of bar 0 fills at open of bar 1")
	assert.Equal(t, 3, trade.ExitIndex)
	assert.InDelta(t, 101*(1+slip), trade.EntryPrice, 1e-12)
	assert.InDelta(t, 108*(1-slip), trade.ExitPrice, 1e-12)
	assert.Equal(t, account.ExitSignal, trade.ExitReason)

	wantRet := (1-fee)*(1-fee)*(108*(1-slip))/(101*(1+slip)) - 1
	assert.InDelta(t, wantRet, trade.Return, 1e-12)

	// Entry bar is marked to its close, exit bar from the previous close to the fill.
	eq1 := (1 - fee) * 103 / (101 * (1 + slip))
	assert.InDelta(t, eq1, res.Equity[1], 1e-12)
	assert.InDelta(t, eq1*106/103, res.Equity[2], 1e-12)
	assert.InDelta(t, 1+wantRet, res.Equity[3], 1e-12)
	assert.InDelta(t, 1+wantRet, res.Equity[4], 1e-12, "flat after the exit")
	assert.Equal(t, []bool{false, true, true, false, false}, res.Position)

	assert.Equal(t, 1, res.Metrics.NTrades)
	assert.InDelta(t, 2.0/5.0, res.Metrics.Exposure, 1e-12)
	assert.InDelta(t, wantRet, res.Metrics.TotalReturn, 1e-12)
}

func TestExecute_StopLossIntrabar(t *testing.T) {
	opens := []float64{100, 100, 99, 99, 99}
	closes := []float64{100, 99, 95, 99, 99}
	bars := mkBars(opens, closes)
	cfg := testConfig()
	cfg.Frictions = Frictions{}
	cfg.Risk.StopLossATR = 1.5

	sig := signals(len(bars), []int{0}, nil)
	sig.ATR[0] = 2
	res := NewEngine(bars, cfg).Execute(sig, Perturbation{})

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, account.ExitStopLoss, trade.ExitReason)
	assert.Equal(t, 2, trade.ExitIndex)
	assert.InDelta(t, 97.0, trade.ExitPrice, 1e-12, "stop is entry fill less 1.5 ATR")
	assert.InDelta(t, -0.03, trade.Return, 1e-12)
}

func TestExecute_TimeStop(t *testing.T) {
	opens := []float64{100, 100, 101, 102, 103, 104}
	closes := []float64{100, 101, 102, 103, 104, 105}
	bars := mkBars(opens, closes)
	cfg := testConfig()
	cfg.Risk.TimeStopBars = 2

	res := NewEngine(bars, cfg).Execute(signals(len(bars), []int{0}, nil), Perturbation{})
	require.Len(t, res.Trades, 1)
	assert.Equal(t, account.ExitTimeStop, res.Trades[0].ExitReason)
	assert.Equal(t, 3, res.Trades[0].ExitIndex)
}

func TestExecute_StopBeatsExitSignal(t *testing.T) {
	opens := []float64{100, 100, 99, 99, 99}
	closes := []float64{100, 99, 95, 99, 99}
	bars := mkBars(opens, closes)
	cfg := testConfig()
	cfg.Frictions = Frictions{}
	cfg.Risk.StopLossATR = 1.5

	sig := signals(len(bars), []int{0}, []int{1})
	sig.ATR[0] = 2
	res := NewEngine(bars, cfg).Execute(sig, Perturbation{})

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, account.ExitStopLoss, trade.ExitReason, "bar 2 reaches the stop and opens on an exit signal")
	assert.Equal(t, 2, trade.ExitIndex)
	assert.InDelta(t, 97.0, trade.ExitPrice, 1e-12)
}

func TestExecute_TrailingUsesATRKnownAtOpen(t *testing.T) {
	opens := []float64{100, 100, 101, 101}
	closes := []float64{100, 101, 102, 102}
	bars := mkBars(opens, closes)
	cfg := testConfig()
	cfg.Frictions = Frictions{}
	cfg.Risk.TrailingStopATR = 1

	sig := signals(len(bars), []int{0}, nil)
	sig.ATR[0] = 1
	sig.ATR[1] = 50
	res := NewEngine(bars, cfg).Execute(sig, Perturbation{})

	// Entry bar high 102 less ATR[0] puts the stop at 101, which bar 2 opens on.
	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, account.ExitTrailing, trade.ExitReason)
	assert.Equal(t, 2, trade.ExitIndex)
	assert.InDelta(t, 101.0, trade.ExitPrice, 1e-12)
}

func TestExecute_OpenPositionBookedAtEnd(t *testing.T) {
	opens := []float64{100, 100, 101, 102}
	closes := []float64{100, 101, 102, 110}
	bars := mkBars(opens, closes)
	cfg := testConfig()
	cfg.Frictions = Frictions{}

	res := NewEngine(bars, cfg).Execute(signals(len(bars), []int{0}, nil), Perturbation{})
	require.Len(t, res.Trades, 1)
	assert.Equal(t, account.ExitEndOfData, res.Trades[0].ExitReason)
	assert.InDelta(t, 0.1, res.Trades[0].Return, 1e-12)
}

func TestExecute_SkipAndDelay(t *testing.T) {
	opens := []float64{100, 100, 101, 102, 103, 104, 105, 106}
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107}
	bars := mkBars(opens, closes)
	cfg := testConfig()
	sig := signals(len(bars), []int{0, 4}, []int{2})
	e := NewEngine(bars, cfg)

	skipped := e.Execute(sig, Perturbation{SkipEntry: []bool{true}})
	require.Len(t, skipped.Trades, 1)
	assert.Equal(t, 5, skipped.Trades[0].EntryIndex, "first entry dropped")

	delayed := e.Execute(sig, Perturbation{DelayBars: 1})
	require.Len(t, delayed.Trades, 2)
	assert.Equal(t, 2, delayed.Trades[0].EntryIndex)
	assert.Equal(t, 6, delayed.Trades[1].EntryIndex)
}

func TestExecute_TradeStartIgnoresEarlierSignals(t *testing.T) {
	opens := []float64{100, 100, 101, 102, 103, 104}
	closes := []float64{100, 101, 102, 103, 104, 105}
	bars := mkBars(opens, closes)
	cfg := testConfig()
	cfg.TradeStart = 2

	res := NewEngine(bars, cfg).Execute(signals(len(bars), []int{1, 3}, nil), Perturbation{})
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 4, res.Trades[0].EntryIndex)
	assert.Len(t, res.Equity, 4)
	assert.Equal(t, 1.0, res.Equity[0])
}

func TestExecute_GapPenaltyRaisesFill(t *testing.T) {
	opens := []float64{100, 110, 111, 112}
	closes := []float64{100, 111, 112, 113}
	bars := mkBars(opens, closes)
	cfg := testConfig()
	cfg.Frictions = Frictions{SlippagePct: 0.001}
	cfg.Strategy.ATRPeriod = 1 // ATR of bar 0 is its range, 2

	sig := signals(len(bars), []int{0}, nil)
	e := NewEngine(bars, cfg)

	plain := e.Execute(sig, Perturbation{})
	gapped := e.Execute(sig, Perturbation{Gap: GapModel{ATRMultiple: 2, SlipPerATR: 0.001}})

	// The open gaps 10 points, 5 ATRs, so 3 ATRs beyond the threshold.
	assert.InDelta(t, 110*1.001, plain.Trades[0].EntryPrice, 1e-12)
	assert.InDelta(t, 110*1.004, gapped.Trades[0].EntryPrice, 1e-12)
	assert.Less(t, gapped.Metrics.TotalReturn, plain.Metrics.TotalReturn)
}

func TestGapModel_ExtraSlippage(t *testing.T) {
	g := GapModel{ATRMultiple: 1, SlipPerATR: 0.002, MaxExtraSlip: 0.01}
	assert.Equal(t, 0.0, g.ExtraSlippage(101, 100, 2), "half an ATR gap is inside the threshold")
	assert.InDelta(t, 0.002, g.ExtraSlippage(104, 100, 2), 1e-12, "two ATRs is one beyond the threshold")
	assert.InDelta(t, 0.002, g.ExtraSlippage(96, 100, 2), 1e-12, "gaps down count too")
	assert.Equal(t, 0.01, g.ExtraSlippage(150, 100, 2), "capped")
	assert.Equal(t, 0.0, g.ExtraSlippage(150, 100, math.NaN()))
	assert.False(t, GapModel{}.Enabled())
}

func TestRun_ZeroTradeFallback(t *testing.T) {
	n := 300
	bars := make([]types.Bar, n)
	start := TimeFromString("2020-01-01T00:00:00Z")
	for i := range bars {
		bars[i] = types.Bar{Timestamp: start.AddDate(0, 0, i), Open: 50, High: 50, Low: 50, Close: 50}
	}
	res, err := Simulate(bars, strategy.Triple{Trigger: 5, Trend: 10, Shift: 2}, testConfig(), Perturbation{})
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, res.Metrics)
	for _, v := range []float64{res.Metrics.CAGR, res.Metrics.Sharpe, res.Metrics.MaxDD} {
		assert.False(t, math.IsNaN(v))
	}
}

func TestRun_InsufficientData(t *testing.T) {
	bars := waveBars(30)
	res, err := Simulate(bars, strategy.Triple{Trigger: 5, Trend: 40, Shift: 5}, testConfig(), Perturbation{})
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.Equal(t, FlagInsufficientData, res.Metrics.Flag)
	assert.Equal(t, 0, res.Metrics.NTrades)
}

func TestRun_Deterministic(t *testing.T) {
	bars := waveBars(800)
	triple := strategy.Triple{Trigger: 5, Trend: 30, Shift: 3}
	e := NewEngine(bars, testConfig())

	first, err := e.Run(triple, Perturbation{})
	require.NoError(t, err)
	require.Greater(t, first.Metrics.NTrades, 0)

	var wg sync.WaitGroup
	results := make([]*Results, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = e.Run(triple, Perturbation{})
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, first.Metrics, r.Metrics)
		assert.Equal(t, first.Trades, r.Trades)
	}
}

func TestRun_NoLookahead(t *testing.T) {
	bars := waveBars(800)
	triple := strategy.Triple{Trigger: 5, Trend: 30, Shift: 3}
	base, err := Simulate(bars, triple, testConfig(), Perturbation{})
	require.NoError(t, err)

	k := 500
	changed := make([]types.Bar, len(bars))
	copy(changed, bars)
	// Bar k keeps its open; everything after it is rewritten.
	changed[k].Close *= 0.8
	changed[k].Low *= 0.7
	for i := k + 1; i < len(changed); i++ {
		changed[i].Open *= 1.3
		changed[i].Close *= 0.6
		changed[i].High *= 1.5
		changed[i].Low *= 0.5
	}
	perturbed, err := Simulate(changed, triple, testConfig(), Perturbation{})
	require.NoError(t, err)

	entries := func(r *Results) [][2]float64 {
		var out [][2]float64
		for _, tr := range r.Trades {
			if tr.EntryIndex <= k {
				out = append(out, [2]float64{float64(tr.EntryIndex), tr.EntryPrice})
			}
		}
		return out
	}
	require.NotEmpty(t, entries(base))
	assert.Equal(t, entries(base), entries(perturbed))
}
