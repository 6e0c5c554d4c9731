// Package oanda pulls mid-price candles from the OANDA v20 REST API.
package oanda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jwtly10/trixplateau/internal/types"
)

const (
	DefaultBaseUrl       = "https://api-fxpractice.oanda.com"
	MaxCandlesPerRequest = 4000 // Limit is 5000 but we maintain a buffer

	// Oanda granularities
	M1  CandlestickGranularity = "M1"
	M5  CandlestickGranularity = "M5"
	M15 CandlestickGranularity = "M15"
	M30 CandlestickGranularity = "M30"
	H1  CandlestickGranularity = "H1"
	H6  CandlestickGranularity = "H6"
	D   CandlestickGranularity = "D"
	W   CandlestickGranularity = "W"
	M   CandlestickGranularity = "M"

	// Oanda Instruments
	EURUSD InstrumentName = "EUR_USD"
	GBPUSD InstrumentName = "GBP_USD"
)

var granularityToDuration = map[CandlestickGranularity]time.Duration{
	M1:  1 * time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  1 * time.Hour,
	H6:  6 * time.Hour,
	D:   24 * time.Hour,
	W:   7 * 24 * time.Hour,
	M:   30 * 24 * time.Hour, // Approx
}

func (g CandlestickGranularity) ToDuration() (time.Duration, error) {
	duration, ok := granularityToDuration[g]
	if !ok {
		return 0, fmt.Errorf("invalid granularity: %s", g)
	}
	return duration, nil
}

// PeriodsPerYear is the annualisation factor matching g for a market that
// trades on weekdays.
func (g CandlestickGranularity) PeriodsPerYear() (float64, error) {
	switch g {
	case D:
		return 260, nil
	case W:
		return 52, nil
	case M:
		return 12, nil
	}
	d, err := g.ToDuration()
	if err != nil {
		return 0, err
	}
	return 260 * float64(24*time.Hour) / float64(d), nil
}

func (g CandlestickGranularity) String() string {
	return string(g)
}

func NewOandaService(accountId, apiKey, apiUrl string) *OandaService {
	if apiUrl == "" {
		apiUrl = DefaultBaseUrl
	}

	return &OandaService{
		AccountId: accountId,
		ApiKey:    apiKey,
		ApiUrl:    apiUrl,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchBars will iteratively fetch all complete bars between 2 dates.
func (s *OandaService) FetchBars(ctx context.Context, req CandleRequest) ([]types.Bar, error) {
	slog.Info("Initiating batched Oanda fetch", "instrument", req.Instrument, "from", req.From, "to", req.To, "period", req.Granularity.String())
	period, err := req.Granularity.ToDuration()
	if err != nil {
		return nil, err
	}

	if req.To.After(time.Now()) {
		req.To = time.Now()
		slog.Warn("Adjusted 'To' time to current time as it was in the future", "newTo", req.To)
	}

	var allBars []types.Bar
	currentFrom := req.From

	for currentFrom.Before(req.To) {
		batchTo := currentFrom.Add(period * time.Duration(MaxCandlesPerRequest))
		if batchTo.After(req.To) {
			batchTo = req.To
		}

		batch, err := s.fetchHistoricCandles(ctx, CandleRequest{
			Instrument:  req.Instrument,
			Granularity: req.Granularity,
			From:        currentFrom,
			To:          batchTo,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch candles between %s and %s: %w", currentFrom, batchTo, err)
		}

		slog.Info("Found bars in latest fetch", "count", len(batch.Candles), "from", currentFrom, "to", batchTo)

		bars, err := candlesToBars(batch.Candles)
		if err != nil {
			return nil, fmt.Errorf("failed to convert candles to bars: %w", err)
		}
		if len(bars) == 0 {
			currentFrom = batchTo
			continue
		}

		for _, b := range bars {
			if n := len(allBars); n > 0 && !b.Timestamp.After(allBars[n-1].Timestamp) {
				continue
			}
			allBars = append(allBars, b)
		}
		// includeFirst=false makes the next batch start strictly after this bar
		currentFrom = bars[len(bars)-1].Timestamp
	}

	slog.Info("Completed fetching all oanda bars", "totalBars", len(allBars))
	return allBars, types.Validate(allBars)
}

// FetchLatest returns up to count of the most recent complete bars.
func (s *OandaService) FetchLatest(ctx context.Context, instrument InstrumentName, granularity CandlestickGranularity, count int) ([]types.Bar, error) {
	if count <= 0 || count > 5000 {
		return nil, fmt.Errorf("count must be in [1, 5000], got %d", count)
	}
	resp, err := s.fetchHistoricCandles(ctx, CandleRequest{Instrument: instrument, Granularity: granularity, Count: count})
	if err != nil {
		return nil, err
	}
	bars, err := candlesToBars(resp.Candles)
	if err != nil {
		return nil, fmt.Errorf("failed to convert candles to bars: %w", err)
	}
	return bars, types.Validate(bars)
}

// candlesToBars drops the still-forming candle, which OANDA returns last.
func candlesToBars(candles []Candlestick) ([]types.Bar, error) {
	bars := make([]types.Bar, 0, len(candles))
	for _, candle := range candles {
		if !candle.Complete {
			continue
		}
		timestamp, err := time.Parse(time.RFC3339, candle.Time)
		if err != nil {
			return nil, fmt.Errorf("failed to parse candle time %s: %w", candle.Time, err)
		}

		var px [4]float64
		for i, v := range []PriceValue{candle.Mid.O, candle.Mid.H, candle.Mid.L, candle.Mid.C} {
			d, err := decimal.NewFromString(string(v))
			if err != nil {
				return nil, fmt.Errorf("failed to parse candle price %q at %s: %w", v, candle.Time, err)
			}
			px[i] = d.InexactFloat64()
		}

		bars = append(bars, types.Bar{
			Timestamp: timestamp.UTC(),
			Open:      px[0],
			High:      px[1],
			Low:       px[2],
			Close:     px[3],
			Volume:    float64(candle.Volume),
		})
	}
	return bars, nil
}

func (s *OandaService) fetchHistoricCandles(ctx context.Context, req CandleRequest) (*CandlestickResponse, error) {
	endpoint := s.ApiUrl + "/v3/accounts/" + s.AccountId + "/instruments/" + string(req.Instrument) + "/candles"

	params := url.Values{}
	params.Add("price", "M")
	if req.Granularity != "" {
		params.Add("granularity", string(req.Granularity))
	}
	if req.Count != 0 {
		params.Add("count", strconv.Itoa(req.Count))
	} else {
		params.Add("from", strconv.FormatInt(req.From.Unix(), 10))
		params.Add("to", strconv.FormatInt(req.To.Unix(), 10))
		params.Add("includeFirst", "false")
	}

	fullURL := endpoint + "?" + params.Encode()

	slog.Debug("Fetching historic candles", "instrument", req.Instrument, "url", fullURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+s.ApiKey)
	httpReq.Header.Set("Accept-Datetime-Format", "RFC3339")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch candles: status code %d, could not read error body: %w", resp.StatusCode, err)
		}

		rawRespBody := string(bodyBytes)
		slog.Error("Failed to fetch candles: API returned an error status",
			"statusCode", resp.StatusCode,
			"rawResponse", rawRespBody)

		return nil, fmt.Errorf("failed to fetch candles: status code %d, API Response: %s", resp.StatusCode, rawRespBody)
	}

	var candleResp CandlestickResponse
	if err := json.NewDecoder(resp.Body).Decode(&candleResp); err != nil {
		return nil, fmt.Errorf("failed to decode candle response: %w", err)
	}

	return &candleResp, nil
}
