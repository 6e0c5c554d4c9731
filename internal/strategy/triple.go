package strategy

import (
	"fmt"
	"strconv"
	"strings"
)

// Triple is one point of the parameter grid.
type Triple struct {
	Trigger int `json:"trigger_period" yaml:"trigger"`
	Trend   int `json:"trend_period" yaml:"trend"`
	Shift   int `json:"shift" yaml:"shift"`
}

func (t Triple) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Trigger, t.Trend, t.Shift)
}

// Less orders triples lexicographically by trigger, trend, then shift.
func (t Triple) Less(o Triple) bool {
	if t.Trigger != o.Trigger {
		return t.Trigger < o.Trigger
	}
	if t.Trend != o.Trend {
		return t.Trend < o.Trend
	}
	return t.Shift < o.Shift
}

func (t Triple) Validate() error {
	if t.Trigger < 1 || t.Trend < 1 || t.Shift < 1 {
		return fmt.Errorf("triple %s: all periods must be positive", t)
	}
	return nil
}

// ParseTriple reads "trigger,trend,shift" (or with '/' separators).
func ParseTriple(s string) (Triple, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '/' })
	if len(parts) != 3 {
		return Triple{}, fmt.Errorf("parse triple %q: want trigger,trend,shift", s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Triple{}, fmt.Errorf("parse triple %q: %w", s, err)
		}
		vals[i] = v
	}
	t := Triple{Trigger: vals[0], Trend: vals[1], Shift: vals[2]}
	return t, t.Validate()
}
