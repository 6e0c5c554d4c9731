// Package prices loads and writes OHLCV bar files.
package prices

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/shopspring/decimal"

	"github.com/jwtly10/trixplateau/internal/types"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var header = []string{"timestamp", "open", "high", "low", "close", "volume"}

// columns maps the fields we need onto their position in the header row.
type columns struct {
	ts, open, high, low, close, volume int
}

func parseHeader(row []string) (columns, error) {
	c := columns{ts: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range row {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "timestamp", "date", "time", "datetime":
			c.ts = i
		case "open":
			c.open = i
		case "high":
			c.high = i
		case "low":
			c.low = i
		case "close":
			c.close = i
		case "volume":
			c.volume = i
		}
	}
	if c.ts < 0 || c.open < 0 || c.high < 0 || c.low < 0 || c.close < 0 {
		return c, fmt.Errorf("header %v lacks one of timestamp, open, high, low, close", row)
	}
	return c, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// Read parses a CSV with a header row. Column order is free; volume is optional.
// Bars must already be in strictly increasing time order.
func Read(r io.Reader) ([]types.Bar, error) {
	cr := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	cr.ReuseRecord = true

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols, err := parseHeader(head)
	if err != nil {
		return nil, err
	}

	var bars []types.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var b types.Bar
		if b.Timestamp, err = parseTime(rec[cols.ts]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for _, f := range []struct {
			idx int
			dst *float64
		}{{cols.open, &b.Open}, {cols.high, &b.High}, {cols.low, &b.Low}, {cols.close, &b.Close}} {
			if *f.dst, err = parsePrice(rec[f.idx]); err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, f.idx+1, err)
			}
		}
		if cols.volume >= 0 && strings.TrimSpace(rec[cols.volume]) != "" {
			if b.Volume, err = parsePrice(rec[cols.volume]); err != nil {
				return nil, fmt.Errorf("line %d volume: %w", line, err)
			}
		}
		bars = append(bars, b)
	}

	if err := types.Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func Load(path string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("Loaded prices", "path", path, "bars", len(bars))
	return bars, nil
}

// Symbol is the file name without its extension.
func Symbol(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadGlob loads every file matching pattern, keyed by Symbol. The returned
// symbols are sorted.
func LoadGlob(pattern string) (map[string][]types.Bar, []string, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no price files match %q", pattern)
	}

	out := make(map[string][]types.Bar, len(paths))
	symbols := make([]string, 0, len(paths))
	for _, p := range paths {
		bars, err := Load(p)
		if err != nil {
			return nil, nil, err
		}
		sym := Symbol(p)
		if _, dup := out[sym]; dup {
			return nil, nil, fmt.Errorf("duplicate symbol %s from %s", sym, p)
		}
		out[sym] = bars
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return out, symbols, nil
}

// Between keeps bars with from <= timestamp <= to. Zero bounds are open.
func Between(bars []types.Bar, from, to time.Time) []types.Bar {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(from) })
	}
	hi := len(bars)
	if !to.IsZero() {
		hi = sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(to) })
	}
	if lo >= hi {
		return nil
	}
	return bars[lo:hi]
}

// ParseDate accepts the same layouts as the CSV timestamp column; "" is the zero time.
func ParseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}

func WriteCSV(w io.Writer, bars []types.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Timestamp.UTC().Format(time.RFC3339),
			decimal.NewFromFloat(b.Open).String(),
			decimal.NewFromFloat(b.High).String(),
			decimal.NewFromFloat(b.Low).String(),
			decimal.NewFromFloat(b.Close).String(),
			decimal.NewFromFloat(b.Volume).String(),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func Save(path string, bars []types.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteCSV(f, bars)
}
