package strategy

import (
	"math"

	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/types"
)

var (
	atrLog  = logging.New("atr")
	emaLog  = logging.New("ema")
	trixLog = logging.New("trix")
	wmaLog  = logging.New("wma")
)

// Indicator is a streaming indicator updated once per bar.
type Indicator interface {
	Value() float64
	Ready() bool
}

// IndicatorsReady calls .Ready() on all indicators and returns true if all are ready
func IndicatorsReady(indicators ...Indicator) bool {
	for _, ind := range indicators {
		if !ind.Ready() {
			return false
		}
	}
	return true
}

// EMA - Exponential Moving Average, seeded with the first price (no bias adjustment)
type EMA struct {
	period int
	value  float64
	alpha  float64
	init   bool
}

func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

func (e *EMA) Update(price float64) {
	if !e.init {
		e.value = price
		e.init = true
		emaLog.Debug("EMA initialized", "period", e.period, "price", price)
		return
	}
	e.value = (price * e.alpha) + (e.value * (1 - e.alpha))
}

func (e *EMA) Value() float64 {
	return e.value
}

func (e *EMA) Ready() bool {
	return e.init
}

// SMA - Simple Moving Average over the last period prices
type SMA struct {
	period int
	values []float64
	sum    float64
}

func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		values: make([]float64, 0, period+1),
	}
}

func (s *SMA) Update(price float64) {
	s.values = append(s.values, price)
	s.sum += price
	if len(s.values) > s.period {
		s.sum -= s.values[0]
		s.values = s.values[1:]
	}
}

func (s *SMA) Value() float64 {
	if len(s.values) == 0 {
		return 0
	}
	return s.sum / float64(len(s.values))
}

func (s *SMA) Ready() bool {
	return len(s.values) >= s.period
}

// WMA - Weighted Moving Average, weights 1..period with the newest price weighted highest
type WMA struct {
	period int
	values []float64
	denom  float64
}

func NewWMA(period int) *WMA {
	return &WMA{
		period: period,
		values: make([]float64, 0, period+1),
		denom:  float64(period*(period+1)) / 2,
	}
}

func (w *WMA) Update(price float64) {
	w.values = append(w.values, price)
	if len(w.values) > w.period {
		w.values = w.values[1:]
	}
	wmaLog.Debug("WMA updated", "period", w.period, "price", price, "ready", w.Ready())
}

func (w *WMA) Value() float64 {
	if !w.Ready() {
		return math.NaN()
	}
	sum := 0.0
	for i, v := range w.values {
		sum += float64(i+1) * v
	}
	return sum / w.denom
}

func (w *WMA) Ready() bool {
	return len(w.values) >= w.period
}

// TRIX - one bar percent change (x100) of a triple smoothed EMA
type TRIX struct {
	period  int
	e1      *EMA
	e2      *EMA
	e3      *EMA
	prev    float64
	value   float64
	updates int
}

func NewTRIX(period int) *TRIX {
	return &TRIX{
		period: period,
		e1:     NewEMA(period),
		e2:     NewEMA(period),
		e3:     NewEMA(period),
	}
}

func (t *TRIX) Update(price float64) {
	t.e1.Update(price)
	t.e2.Update(t.e1.Value())
	t.e3.Update(t.e2.Value())

	smoothed := t.e3.Value()
	if t.updates > 0 {
		if t.prev != 0 {
			t.value = (smoothed/t.prev - 1) * 100
		} else {
			t.value = math.NaN()
		}
	}
	t.prev = smoothed
	t.updates++

	trixLog.Debug("TRIX updated", "period", t.period, "price", price, "ema3", smoothed, "value", t.value)
}

func (t *TRIX) Value() float64 {
	if !t.Ready() {
		return math.NaN()
	}
	return t.value
}

// Ready once a previous smoothed value exists to take the change against.
func (t *TRIX) Ready() bool {
	return t.updates >= 2
}

// ATR - Average True Range as a simple average of true range.
// The first bar has no previous close so its true range is high - low.
type ATR struct {
	period  int
	sma     *SMA
	prevBar *types.Bar
}

func NewATR(period int) *ATR {
	return &ATR{
		period: period,
		sma:    NewSMA(period),
	}
}

func (a *ATR) Update(bar types.Bar) {
	tr := bar.High - bar.Low
	if a.prevBar != nil {
		// True Range = max of:
		// 1. Current High - Current Low
		// 2. |Current High - Previous Close|
		// 3. |Current Low - Previous Close|
		tr2 := math.Abs(bar.High - a.prevBar.Close)
		tr3 := math.Abs(bar.Low - a.prevBar.Close)
		tr = math.Max(tr, math.Max(tr2, tr3))
	}

	a.sma.Update(tr)
	prev := bar
	a.prevBar = &prev

	atrLog.Debug("ATR updated", "timestamp", bar.Timestamp, "trueRange", tr, "value", a.Value(), "ready", a.Ready())
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return math.NaN()
	}
	return a.sma.Value()
}

func (a *ATR) Ready() bool {
	return a.sma.Ready()
}

// Batch helpers drive the streaming indicators over a whole series so both
// forms always agree. Bars before an indicator is ready hold NaN.

func WMASeries(prices []float64, period int) []float64 {
	w := NewWMA(period)
	out := make([]float64, len(prices))
	for i, p := range prices {
		w.Update(p)
		out[i] = w.Value()
	}
	return out
}

func TRIXSeries(prices []float64, period int) []float64 {
	t := NewTRIX(period)
	out := make([]float64, len(prices))
	for i, p := range prices {
		t.Update(p)
		out[i] = t.Value()
	}
	return out
}

func SMASeries(prices []float64, period int) []float64 {
	s := NewSMA(period)
	out := make([]float64, len(prices))
	for i, p := range prices {
		s.Update(p)
		out[i] = math.NaN()
		if s.Ready() {
			out[i] = s.Value()
		}
	}
	return out
}

func EMASeries(prices []float64, period int) []float64 {
	e := NewEMA(period)
	out := make([]float64, len(prices))
	for i, p := range prices {
		e.Update(p)
		out[i] = e.Value()
	}
	return out
}

func ATRSeries(bars []types.Bar, period int) []float64 {
	a := NewATR(period)
	out := make([]float64, len(bars))
	for i, b := range bars {
		a.Update(b)
		out[i] = a.Value()
	}
	return out
}
