// Package tradingview renders simulated trades as Pine Script markers so a
// triple can be checked by eye against a TradingView chart.
package tradingview

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jwtly10/trixplateau/internal/account"
	"github.com/jwtly10/trixplateau/internal/strategy"
)

// Enabled reports whether DEBUG_DUMP=1 is set.
func Enabled() bool {
	return os.Getenv("DEBUG_DUMP") == "1"
}

// DumpPineScript writes the markers to w when DEBUG_DUMP=1.
func DumpPineScript(w io.Writer, symbol string, t strategy.Triple, trades []account.Trade) error {
	if !Enabled() {
		return nil
	}
	slog.Info("DEBUG_DUMP=1, dumping Pine Script markers", "symbol", symbol, "triple", t.String(), "trades", len(trades))
	_, err := io.WriteString(w, generateTradePinescript(symbol, t, trades))
	return err
}

func generateTradePinescript(symbol string, t strategy.Triple, trades []account.Trade) string {
	var sb strings.Builder

	sb.WriteString("// ============================================\n")
	sb.WriteString(fmt.Sprintf("// TRADE MARKERS %s %s\n", symbol, t))
	sb.WriteString("// ============================================\n\n")

	for _, trade := range trades {
		entryText := fmt.Sprintf("#%d LONG\\nEntry: %.5f", trade.ID, trade.EntryPrice)
		if trade.StopLoss > 0 {
			entryText += fmt.Sprintf("\\nSL: %.5f", trade.StopLoss)
		}
		sb.WriteString(fmt.Sprintf("t%d_entry = time == %s\n", trade.ID, formatPineTimestamp(trade.EntryTime)))
		sb.WriteString(fmt.Sprintf("plotshape(t%d_entry, title=\"#%d Entry\", location=location.bottom, color=color.blue, style=shape.labelup, size=size.small, text=\"%s\", textcolor=color.white)\n\n",
			trade.ID, trade.ID, entryText))

		exitText := fmt.Sprintf("#%d EXIT\\nExit: %.5f\\nReturn: %.2f%%\\n%s",
			trade.ID, trade.ExitPrice, trade.Return*100, trade.ExitReason)
		sb.WriteString(fmt.Sprintf("t%d_exit = time == %s\n", trade.ID, formatPineTimestamp(trade.ExitTime)))
		sb.WriteString(fmt.Sprintf("plotshape(t%d_exit, title=\"#%d EXIT\", location=location.top, color=%s, style=shape.labeldown, size=size.small, text=\"%s\", textcolor=color.white)\n\n",
			trade.ID, trade.ID, exitColor(trade), exitText))
	}

	return sb.String()
}

func exitColor(trade account.Trade) string {
	switch {
	case trade.ExitReason == account.ExitStopLoss, trade.ExitReason == account.ExitTrailing:
		return "color.red"
	case trade.Return < 0:
		return "color.orange"
	default:
		return "color.green"
	}
}

func formatPineTimestamp(t time.Time) string {
	utc := t.UTC()
	return fmt.Sprintf("timestamp(\"UTC\", %d, %d, %d, %d, %d)",
		utc.Year(), int(utc.Month()), utc.Day(), utc.Hour(), utc.Minute())
}
