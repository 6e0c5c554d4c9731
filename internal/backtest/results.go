package backtest

import (
	"github.com/jwtly10/trixplateau/internal/account"
	"github.com/jwtly10/trixplateau/internal/strategy"
)

type Results struct {
	Triple   strategy.Triple
	Metrics  Metrics
	Trades   []account.Trade
	Equity   []float64
	Position []bool
}

// TradeReturns lists realised trade returns in exit order.
func (r *Results) TradeReturns() []float64 {
	out := make([]float64, len(r.Trades))
	for i, t := range r.Trades {
		out[i] = t.Return
	}
	return out
}
