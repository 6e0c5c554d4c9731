package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jwtly10/trixplateau/internal/backtest"
	"github.com/jwtly10/trixplateau/internal/grid"
	"github.com/jwtly10/trixplateau/internal/montecarlo"
	"github.com/jwtly10/trixplateau/internal/multiasset"
	"github.com/jwtly10/trixplateau/internal/pipeline"
	"github.com/jwtly10/trixplateau/internal/plateau"
	"github.com/jwtly10/trixplateau/internal/verdict"
)

var (
	styleGreen = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleRed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleCyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	styleGo   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")).Padding(0, 1)
	styleNoGo = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("196")).Padding(0, 1)
)

func pct(f float64) string { return fmt.Sprintf("%.2f%%", f*100) }

func metricLine(m backtest.Metrics) string {
	return fmt.Sprintf("CAGR %s  Sharpe %.3f  MaxDD %s  Trades %d", pct(m.CAGR), m.Sharpe, pct(m.MaxDD), m.NTrades)
}

func panel(title string, lines ...string) string {
	body := append([]string{styleHeader.Render(title)}, lines...)
	return stylePanel.Render(lipgloss.JoinVertical(lipgloss.Left, body...))
}

func renderVerdict(v verdict.Verdict) string {
	badge := styleGo.Render(string(v.Decision))
	if v.Decision != verdict.Go {
		badge = styleNoGo.Render(string(v.Decision))
	}
	lines := []string{badge, ""}
	for _, c := range v.Checks {
		mark := styleGreen.Render("pass")
		if !c.Passed {
			mark = styleRed.Render("FAIL")
		}
		lines = append(lines, fmt.Sprintf("%-22s %10.4f %-2s %8.4f  %s", c.Name, c.Value, c.Op, c.Threshold, mark))
	}
	return panel("Verdict", lines...)
}

func renderPlateaus(ranked []plateau.Candidate, limit int) []string {
	if len(ranked) == 0 {
		return []string{styleDim.Render("no plateau survived rejection")}
	}
	lines := []string{styleDim.Render(fmt.Sprintf("%-4s %-10s %8s %10s %10s %6s", "rank", "triple", "score", "nb_alpha", "nb_maxdd", "beat"))}
	for i, c := range ranked {
		if i == limit {
			break
		}
		lines = append(lines, fmt.Sprintf("%-4d %-10s %8.3f %10s %10s %6.2f",
			i+1, c.Center.String(), c.Score, pct(c.MedianAlphaCAGR), pct(c.MedianMaxDD), c.BeatFraction))
	}
	return lines
}

func renderGrid(symbol string, g *grid.Result, ranked []plateau.Candidate) string {
	lines := []string{
		fmt.Sprintf("%d cells, %d failed", len(g.Cells), g.Failed()),
		"Buy & hold: " + metricLine(g.Benchmark),
	}
	if best, ok := g.Best(); ok {
		lines = append(lines, styleCyan.Render(fmt.Sprintf("Best cell %s: ", best.Triple))+metricLine(best.Metrics))
	}
	lines = append(lines, "")
	lines = append(lines, renderPlateaus(ranked, 10)...)
	return panel("Grid "+symbol, lines...)
}

func renderStress(symbol string, base backtest.Metrics, rep *montecarlo.Report, boot *montecarlo.Bootstrap) string {
	s := rep.Summary
	lines := []string{
		"Base:       " + metricLine(base),
		fmt.Sprintf("Runs:       %d (%d failed)", s.Runs, s.FailedRuns),
		fmt.Sprintf("CAGR:       p5 %s  median %s  p95 %s", pct(s.CAGR.P5), pct(s.CAGR.Median), pct(s.CAGR.P95)),
		fmt.Sprintf("MaxDD:      p5 %s  median %s", pct(s.MaxDD.P5), pct(s.MaxDD.Median)),
		fmt.Sprintf("B&H CAGR:   %s  P(underperform) %.3f", pct(s.BenchmarkCAGR), s.ProbUnderperform),
	}
	if boot != nil {
		lines = append(lines, fmt.Sprintf("Bootstrap:  %d trades, total return p5 %s median %s, P(loss) %.3f",
			boot.Trades, pct(boot.TotalReturn.P5), pct(boot.TotalReturn.Median), boot.ProbLoss))
	}
	return panel(fmt.Sprintf("Stress %s %s", symbol, rep.Triple), lines...)
}

func renderReport(rep *pipeline.Report, runID string) string {
	wf := rep.WalkForwardSummary()
	lines := []string{
		styleDim.Render("run " + runID),
		fmt.Sprintf("Selected %s (%s)", rep.Selection.Triple, rep.Selection.Method),
		"Full history: " + metricLine(rep.Base.Metrics),
		"Buy & hold:   " + metricLine(rep.Grid.Benchmark),
		"",
	}
	lines = append(lines, renderPlateaus(rep.Plateaus, 5)...)
	lines = append(lines, "",
		fmt.Sprintf("Walk-forward: %d windows (%d failed), median OOS Sharpe %.3f, median alpha %s, beat B&H %.0f%%",
			wf.Windows, wf.Failed, wf.MedianSharpe, pct(wf.MedianAlphaCAGR), wf.FracBeat*100),
	)
	body := panel("Research "+rep.Symbol, lines...)
	return lipgloss.JoinVertical(lipgloss.Left, body, renderStress(rep.Symbol, rep.Base.Metrics, rep.Stress, rep.Bootstrap), renderVerdict(rep.Verdict))
}

func renderMultiAsset(rep *multiasset.Report) string {
	lines := []string{styleDim.Render(fmt.Sprintf("%-10s %-10s %10s %10s %6s", "symbol", "plateau", "cagr", "bh_cagr", "beats"))}
	for _, r := range rep.Rows {
		switch {
		case r.Error != "":
			lines = append(lines, fmt.Sprintf("%-10s %s", r.Symbol, styleRed.Render("error: "+r.Error)))
		case r.Plateau == nil:
			lines = append(lines, fmt.Sprintf("%-10s %-10s %10s %10s %6s", r.Symbol, "-", "-", pct(r.Benchmark.CAGR), "-"))
		default:
			lines = append(lines, fmt.Sprintf("%-10s %-10s %10s %10s %6t",
				r.Symbol, r.Plateau.Center.String(), pct(r.Pixel.CAGR), pct(r.Benchmark.CAGR), r.BeatsBenchmark))
		}
	}
	lines = append(lines, "", fmt.Sprintf("Beat B&H on %d of %d symbols, underperformance frequency %.2f",
		int(rep.FracBeat*float64(rep.Evaluated)+0.5), rep.Evaluated, rep.UnderperformanceFreq))
	return panel("Multi-asset", strings.Join(lines, "\n"))
}
