package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jwtly10/trixplateau/internal/config"
	"github.com/jwtly10/trixplateau/internal/oanda"
	"github.com/jwtly10/trixplateau/internal/prices"
	"github.com/jwtly10/trixplateau/internal/types"
)

// loadBars resolves the configured data source. A path argument overrides
// data.path for CSV sources.
func loadBars(ctx context.Context, cfg *config.Config, args []string) (string, []types.Bar, error) {
	d := cfg.Data
	from, to, err := dateRange(d)
	if err != nil {
		return "", nil, err
	}

	var (
		symbol = d.Symbol
		bars   []types.Bar
	)
	switch d.Source {
	case config.SourceOanda:
		if symbol == "" {
			return "", nil, fmt.Errorf("data.symbol is required for the oanda source")
		}
		bars, err = fetchOanda(ctx, d, from, to)
	default:
		path := d.Path
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			return "", nil, fmt.Errorf("no price file: pass a path or set data.path")
		}
		if symbol == "" || len(args) > 0 {
			symbol = prices.Symbol(path)
		}
		bars, err = prices.Load(path)
	}
	if err != nil {
		return "", nil, err
	}

	bars = prices.Between(bars, from, to)
	if len(bars) == 0 {
		return "", nil, fmt.Errorf("%s: no bars between %q and %q", symbol, d.Start, d.End)
	}
	slog.Info("Loaded bars", "symbol", symbol, "bars", len(bars),
		"from", bars[0].Timestamp.Format(time.DateOnly), "to", bars[len(bars)-1].Timestamp.Format(time.DateOnly))
	return symbol, bars, nil
}

func dateRange(d config.Data) (time.Time, time.Time, error) {
	from, err := prices.ParseDate(d.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("data.start: %w", err)
	}
	to, err := prices.ParseDate(d.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("data.end: %w", err)
	}
	return from, to, nil
}

func fetchOanda(ctx context.Context, d config.Data, from, to time.Time) ([]types.Bar, error) {
	accountId := os.Getenv("OANDA_ACCOUNT_ID")
	if accountId == "" {
		return nil, fmt.Errorf("OANDA_ACCOUNT_ID not set")
	}
	apiKey := os.Getenv("OANDA_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OANDA_API_KEY not set")
	}
	client := oanda.NewOandaService(accountId, apiKey, os.Getenv("OANDA_API_URL"))

	instrument := oanda.InstrumentName(d.Symbol)
	granularity := oanda.CandlestickGranularity(d.Granularity)
	if from.IsZero() {
		return client.FetchLatest(ctx, instrument, granularity, d.Count)
	}
	if to.IsZero() {
		to = time.Now()
	}
	return client.FetchBars(ctx, oanda.CandleRequest{
		Instrument:  instrument,
		Granularity: granularity,
		From:        from,
		To:          to,
	})
}

// loadAssets reads every CSV matched by pattern, trimmed to the configured dates.
func loadAssets(cfg *config.Config, pattern string) (map[string][]types.Bar, error) {
	from, to, err := dateRange(cfg.Data)
	if err != nil {
		return nil, err
	}
	assets, symbols, err := prices.LoadGlob(pattern)
	if err != nil {
		return nil, err
	}
	for _, s := range symbols {
		assets[s] = prices.Between(assets[s], from, to)
	}
	slog.Info("Loaded assets", "pattern", pattern, "symbols", symbols)
	return assets, nil
}
