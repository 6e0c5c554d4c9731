package account

import (
	"log/slog"
	"math"
	"time"

	"github.com/jwtly10/trixplateau/internal/types"
)

const (
	ExitSignal    ExitReason = "SIGNAL"
	ExitStopLoss  ExitReason = "STOP_LOSS"
	ExitTrailing  ExitReason = "TRAILING_STOP"
	ExitTimeStop  ExitReason = "TIME_STOP"
	ExitEndOfData ExitReason = "END_OF_DATA"
)

type ExitReason string

// Account is a long-only, fully invested ledger. Equity compounds from a
// reference value of 1 and is marked against the last price it saw.
type Account struct {
	Equity float64

	position *Position
	trades   []Trade
	nextID   int
}

type Position struct {
	ID            int
	EntryIndex    int
	EntryTime     time.Time
	EntryPrice    float64
	StopLoss      float64
	Trailing      bool
	HighestHigh   float64
	BarsHeld      int
	equityAtEntry float64
	lastMark      float64
}

// Trade is a closed round trip. Return includes fees and slippage.
type Trade struct {
	ID         int
	EntryIndex int
	ExitIndex  int
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	StopLoss   float64
	Return     float64
	ExitReason ExitReason
}

func NewAccount() *Account {
	return &Account{Equity: 1, nextID: 1}
}

func (a *Account) InPosition() bool {
	return a.position != nil
}

func (a *Account) Position() *Position {
	return a.position
}

func (a *Account) Trades() []Trade {
	return a.trades
}

// Open enters at fill, paying feePct on the notional. The position is marked
// at the fill price until the next Mark.
func (a *Account) Open(index int, ts time.Time, fill, feePct, stop float64) *Position {
	a.position = &Position{
		ID:            a.nextID,
		EntryIndex:    index,
		EntryTime:     ts,
		EntryPrice:    fill,
		StopLoss:      stop,
		BarsHeld:      1,
		equityAtEntry: a.Equity,
		lastMark:      fill,
	}
	a.nextID++
	a.Equity *= 1 - feePct

	slog.Debug("Opened position", "id", a.position.ID, "index", index, "fill", fill, "stop", stop, "equity", a.Equity)
	return a.position
}

// Mark revalues the open position at price.
func (a *Account) Mark(price float64) {
	if a.position == nil {
		return
	}
	a.Equity *= price / a.position.lastMark
	a.position.lastMark = price
}

// UpdateTrailing ratchets the stop up to the highest high less mult ATRs.
func (a *Account) UpdateTrailing(high, atr, mult float64) {
	pos := a.position
	if pos == nil || mult <= 0 || math.IsNaN(atr) {
		return
	}
	if high > pos.HighestHigh {
		pos.HighestHigh = high
	}
	stop := pos.HighestHigh - atr*mult
	if stop > pos.StopLoss {
		pos.StopLoss = stop
		pos.Trailing = true
	}
}

// StopFill reports whether the bar reaches the stop. A bar opening through
// the stop fills at the open, otherwise the fill is the stop level.
func (a *Account) StopFill(bar types.Bar) (float64, ExitReason, bool) {
	pos := a.position
	if pos == nil || pos.StopLoss <= 0 {
		return 0, "", false
	}
	reason := ExitStopLoss
	if pos.Trailing {
		reason = ExitTrailing
	}
	if bar.Open <= pos.StopLoss {
		return bar.Open, reason, true
	}
	if bar.Low <= pos.StopLoss {
		return pos.StopLoss, reason, true
	}
	return 0, "", false
}

// Close exits at fill, paying feePct, and records the trade.
func (a *Account) Close(index int, ts time.Time, fill, feePct float64, reason ExitReason) Trade {
	a.Mark(fill)
	a.Equity *= 1 - feePct
	return a.record(index, ts, fill, reason)
}

// CloseAtEnd books a position still open on the last bar at its mark, without an exit fee.
func (a *Account) CloseAtEnd(index int, ts time.Time) (Trade, bool) {
	if a.position == nil {
		return Trade{}, false
	}
	return a.record(index, ts, a.position.lastMark, ExitEndOfData), true
}

func (a *Account) record(index int, ts time.Time, fill float64, reason ExitReason) Trade {
	pos := a.position
	trade := Trade{
		ID:         pos.ID,
		EntryIndex: pos.EntryIndex,
		ExitIndex:  index,
		EntryTime:  pos.EntryTime,
		ExitTime:   ts,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill,
		StopLoss:   pos.StopLoss,
		Return:     a.Equity/pos.equityAtEntry - 1,
		ExitReason: reason,
	}
	a.trades = append(a.trades, trade)
	a.position = nil

	slog.Debug("Closed position", "id", trade.ID, "index", index, "fill", fill, "return", trade.Return, "reason", reason)
	return trade
}
