package backtest

import (
	"math"

	"github.com/jwtly10/trixplateau/internal/account"
	"github.com/jwtly10/trixplateau/internal/stats"
	"github.com/jwtly10/trixplateau/internal/types"
)

const (
	FlagInsufficientData = "insufficient_data"
	FlagFailed           = "failed"
)

// ddEpsilon guards Calmar against a drawdown that is zero up to rounding.
const ddEpsilon = 1e-10

// Metrics is the performance record of one simulation. MaxDD is a negative
// fraction. A run without trades reports zero everywhere; Flag says why a
// run could not be simulated at all.
type Metrics struct {
	TotalReturn float64 `json:"total_return"`
	CAGR        float64 `json:"cagr"`
	AnnVol      float64 `json:"ann_vol"`
	Sharpe      float64 `json:"sharpe"`
	MaxDD       float64 `json:"max_dd"`
	Calmar      float64 `json:"calmar"`
	NTrades     int     `json:"n_trades"`
	WinRate     float64 `json:"win_rate"`
	AvgTradeRet float64 `json:"avg_trade_ret"`
	Exposure    float64 `json:"exposure"`
	Flag        string  `json:"flag,omitempty"`
}

func computeMetrics(equity []float64, inPos []bool, trades []account.Trade, periodsPerYear, riskFree float64) Metrics {
	if len(trades) == 0 || len(equity) < 2 {
		return Metrics{}
	}

	m := curveMetrics(equity, equity[len(equity)-1]/equity[0]-1, periodsPerYear, riskFree)
	m.NTrades = len(trades)

	wins := 0
	rets := make([]float64, len(trades))
	for i, t := range trades {
		rets[i] = t.Return
		if t.Return > 0 {
			wins++
		}
	}
	m.WinRate = float64(wins) / float64(len(trades))
	m.AvgTradeRet = stats.Mean(rets)

	held := 0
	for _, p := range inPos {
		if p {
			held++
		}
	}
	m.Exposure = float64(held) / float64(len(inPos))
	return m
}

// curveMetrics derives the return and risk figures from an equity curve.
// CAGR annualises totalReturn over len(equity) bars.
func curveMetrics(equity []float64, totalReturn, periodsPerYear, riskFree float64) Metrics {
	m := Metrics{TotalReturn: totalReturn}
	m.CAGR = Annualize(totalReturn, len(equity), periodsPerYear)

	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		rets = append(rets, equity[i]/equity[i-1]-1)
	}
	m.AnnVol = stats.StdDev(rets) * math.Sqrt(periodsPerYear)
	if m.AnnVol > 0 {
		m.Sharpe = (m.CAGR - riskFree) / m.AnnVol
	}

	m.MaxDD = MaxDrawdown(equity)
	if math.Abs(m.MaxDD) > ddEpsilon {
		m.Calmar = m.CAGR / math.Abs(m.MaxDD)
	}
	return m
}

// Annualize converts a total return over nBars into a compound annual rate.
func Annualize(totalReturn float64, nBars int, periodsPerYear float64) float64 {
	if totalReturn <= -1 {
		return -1
	}
	years := float64(nBars) / periodsPerYear
	if years <= 0 {
		return 0
	}
	return math.Pow(1+totalReturn, 1/years) - 1
}

// MaxDrawdown is the deepest decline from a running peak, as a fraction <= 0.
func MaxDrawdown(equity []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, v := range equity {
		peak = math.Max(peak, v)
		if peak > 0 {
			worst = math.Min(worst, (v-peak)/peak)
		}
	}
	return worst
}

// BuyAndHold is the benchmark over the same bars: buy the first open and sell
// the last open, both with frictions, holding one trade throughout.
func BuyAndHold(bars []types.Bar, f Frictions, periodsPerYear, riskFree float64) Metrics {
	n := len(bars)
	if n < 2 {
		return Metrics{}
	}
	entry := bars[0].Open * (1 + f.SlippagePct) * (1 + f.FeesPct)
	exit := bars[n-1].Open * (1 - f.SlippagePct) * (1 - f.FeesPct)

	equity := make([]float64, n)
	for i, b := range bars {
		equity[i] = b.Close / bars[0].Close
	}

	m := curveMetrics(equity, exit/entry-1, periodsPerYear, riskFree)
	m.NTrades = 1
	if m.TotalReturn > 0 {
		m.WinRate = 1
	}
	m.AvgTradeRet = m.TotalReturn
	m.Exposure = 1
	return m
}
