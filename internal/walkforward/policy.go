package walkforward

import (
	"context"
	"fmt"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/grid"
	"github.com/jwtly10/trixplateau/internal/plateau"
	"github.com/jwtly10/trixplateau/internal/strategy"
	"github.com/jwtly10/trixplateau/internal/types"
)

const (
	MethodPlateau  = "plateau"
	MethodFallback = "best_cagr_fallback"
	MethodFixed    = "fixed"
)

type Selection struct {
	Triple strategy.Triple
	Method string
	Score  float64
}

// SelectionPolicy picks the triple a window trades, seeing only its train bars.
type SelectionPolicy interface {
	Select(ctx context.Context, train []types.Bar) (Selection, error)
	// Lookback is the longest indicator warm-up of any triple the policy can return.
	Lookback() int
}

// PlateauPolicy re-optimises on every train period: grid, then plateau
// scoring, falling back to the best-CAGR cell when no centre survives.
type PlateauPolicy struct {
	Ranges   grid.Ranges
	Plateau  plateau.Config
	Backtest backtest.Config
	Workers  int
	Symbol   string
}

func (p *PlateauPolicy) Select(ctx context.Context, train []types.Bar) (Selection, error) {
	cfg := p.Backtest
	cfg.TradeStart = 0
	g, err := grid.Evaluate(ctx, train, p.Ranges, cfg, grid.Options{Workers: p.Workers, Symbol: p.Symbol})
	if err != nil {
		return Selection{}, err
	}
	ranked, err := plateau.Score(g, p.Plateau)
	if err != nil {
		return Selection{}, err
	}
	if len(ranked) > 0 {
		return Selection{Triple: ranked[0].Center, Method: MethodPlateau, Score: ranked[0].Score}, nil
	}

	best, ok := g.Best()
	if !ok {
		return Selection{}, fmt.Errorf("no triple could be simulated on %d train bars", len(train))
	}
	wfLog.Debug("No plateau survived, using best cell", "triple", best.Triple.String(), "cagr", best.Metrics.CAGR)
	return Selection{Triple: best.Triple, Method: MethodFallback}, nil
}

// Lookback grows with every period, so the corner of the ranges bounds it.
func (p *PlateauPolicy) Lookback() int {
	corner := strategy.Triple{
		Trigger: maxValue(p.Ranges.Trigger),
		Trend:   maxValue(p.Ranges.Trend),
		Shift:   maxValue(p.Ranges.Shift),
	}
	return p.Backtest.Strategy.Lookback(corner)
}

func maxValue(r grid.Range) int {
	vals := r.Values()
	if len(vals) == 0 {
		return 0
	}
	return vals[len(vals)-1]
}

// FixedPolicy trades one triple in every window without re-optimising.
type FixedPolicy struct {
	Triple  strategy.Triple
	Options strategy.Options
}

func (p *FixedPolicy) Select(context.Context, []types.Bar) (Selection, error) {
	return Selection{Triple: p.Triple, Method: MethodFixed}, nil
}

func (p *FixedPolicy) Lookback() int { return p.Options.Lookback(p.Triple) }
