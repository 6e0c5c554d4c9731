package montecarlo

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/jwtly10/trixplateau/internal/stats"
)

// minBootstrapTrades is the smallest trade sample worth resampling.
const minBootstrapTrades = 5

var ErrTooFewTrades = errors.New("too few trades to bootstrap")

// Bootstrap is the distribution of compounded returns obtained by drawing
// the realised trades with replacement.
type Bootstrap struct {
	Trades      int                `json:"trades"`
	Runs        int                `json:"runs"`
	TotalReturn stats.Distribution `json:"total_return"`
	MeanTrade   stats.Distribution `json:"mean_trade"`
	ProbLoss    float64            `json:"prob_loss"`
}

// BootstrapTrades resamples returns runs times. Each sample has as many
// trades as the original sequence.
func BootstrapTrades(returns []float64, runs int, seed uint64) (Bootstrap, error) {
	if len(returns) < minBootstrapTrades {
		return Bootstrap{}, fmt.Errorf("%d trades, need %d: %w", len(returns), minBootstrapTrades, ErrTooFewTrades)
	}
	if runs <= 0 {
		return Bootstrap{}, fmt.Errorf("bootstrap runs must be positive, got %d", runs)
	}

	r := rand.New(rand.NewPCG(seed, bootstrapStream))
	totals := make([]float64, runs)
	means := make([]float64, runs)
	losses := 0
	for i := 0; i < runs; i++ {
		growth, sum := 1.0, 0.0
		for range returns {
			x := returns[r.IntN(len(returns))]
			growth *= 1 + x
			sum += x
		}
		totals[i] = growth - 1
		means[i] = sum / float64(len(returns))
		if totals[i] < 0 {
			losses++
		}
	}

	mcLog.Debug("Bootstrap complete", "trades", len(returns), "runs", runs)
	return Bootstrap{
		Trades:      len(returns),
		Runs:        runs,
		TotalReturn: stats.Describe(totals),
		MeanTrade:   stats.Describe(means),
		ProbLoss:    float64(losses) / float64(runs),
	}, nil
}
