package types

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnorderedBars = errors.New("bars are not strictly increasing in time")

type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate checks that timestamps are strictly increasing, which also rules out duplicates.
func Validate(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bar %d (%s) follows %s: %w",
				i, bars[i].Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339), ErrUnorderedBars)
		}
	}
	return nil
}

func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
