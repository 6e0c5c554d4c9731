// Package verdict turns walk-forward and stress results into a GO/NO-GO call.
package verdict

import (
	"fmt"
	"strings"

	"github.com/jwtly10/trixplateau/internal/logging"
	"github.com/jwtly10/trixplateau/internal/montecarlo"
	"github.com/jwtly10/trixplateau/internal/walkforward"
)

var verdictLog = logging.New("verdict")

type Decision string

const (
	Go   Decision = "GO"
	NoGo Decision = "NO-GO"
)

type Thresholds struct {
	MinWindows          int     `yaml:"min_windows"`
	MinOOSSharpe        float64 `yaml:"min_oos_sharpe"`
	MinOOSAlphaCAGR     float64 `yaml:"min_oos_alpha_cagr"`
	MaxProbUnderperform float64 `yaml:"max_prob_underperform"`
	// MinStressP5CAGR adds a floor on the 5th percentile stressed CAGR when set.
	MinStressP5CAGR *float64 `yaml:"min_stress_p5_cagr,omitempty"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinWindows: 1, MaxProbUnderperform: 0.2}
}

func (t Thresholds) Validate() error {
	if t.MinWindows < 1 {
		return fmt.Errorf("min_windows must be at least 1, got %d", t.MinWindows)
	}
	if t.MaxProbUnderperform <= 0 || t.MaxProbUnderperform > 1 {
		return fmt.Errorf("max_prob_underperform must be in (0, 1], got %g", t.MaxProbUnderperform)
	}
	return nil
}

// Check is one auditable condition. Op is how Value is compared to Threshold.
type Check struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Op        string  `json:"op"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
}

func (c Check) String() string {
	status := "pass"
	if !c.Passed {
		status = "FAIL"
	}
	return fmt.Sprintf("%s %.4f %s %.4f: %s", c.Name, c.Value, c.Op, c.Threshold, status)
}

type Verdict struct {
	Decision Decision `json:"decision"`
	Checks   []Check  `json:"checks"`
	Failed   []string `json:"failed,omitempty"`
}

func (v Verdict) String() string {
	if v.Decision == Go {
		return string(Go)
	}
	return fmt.Sprintf("%s (%s)", v.Decision, strings.Join(v.Failed, ", "))
}

func above(name string, value, threshold float64) Check {
	return Check{Name: name, Value: value, Op: ">", Threshold: threshold, Passed: value > threshold}
}

func below(name string, value, threshold float64) Check {
	return Check{Name: name, Value: value, Op: "<", Threshold: threshold, Passed: value < threshold}
}

// Aggregate ANDs every check. Each check is always recorded with its value,
// so a NO-GO names every metric responsible for it.
func Aggregate(wf walkforward.Summary, mc montecarlo.Summary, th Thresholds) Verdict {
	checks := []Check{
		{
			Name:      "evaluated_windows",
			Value:     float64(wf.Evaluated),
			Op:        ">=",
			Threshold: float64(th.MinWindows),
			Passed:    wf.Evaluated >= th.MinWindows,
		},
		above("median_oos_sharpe", wf.MedianSharpe, th.MinOOSSharpe),
		above("median_oos_alpha_cagr", wf.MedianAlphaCAGR, th.MinOOSAlphaCAGR),
		below("prob_underperform", mc.ProbUnderperform, th.MaxProbUnderperform),
	}
	if th.MinStressP5CAGR != nil {
		checks = append(checks, above("stress_p5_cagr", mc.CAGR.P5, *th.MinStressP5CAGR))
	}

	v := Verdict{Decision: Go, Checks: checks}
	for _, c := range checks {
		verdictLog.Debug("Check", "name", c.Name, "value", c.Value, "threshold", c.Threshold, "passed", c.Passed)
		if !c.Passed {
			v.Decision = NoGo
			v.Failed = append(v.Failed, c.Name)
		}
	}
	return v
}
