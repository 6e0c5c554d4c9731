package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	assert.True(t, math.IsNaN(Median(nil)))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	xs := []float64{3, 1, 2}
	Median(xs)
	assert.Equal(t, []float64{3, 1, 2}, xs, "input must not be reordered")
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.2, Percentile(xs, 0.05), 1e-12)
	assert.InDelta(t, 2.0, Percentile(xs, 0.25), 1e-12)
	assert.InDelta(t, 4.8, Percentile(xs, 0.95), 1e-12)
	assert.Equal(t, 1.0, Percentile(xs, 0))
	assert.Equal(t, 5.0, Percentile(xs, 1))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 0.3))
}

func TestStdDev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, PopStdDev(xs), 1e-12)
	assert.InDelta(t, 2.138089935, StdDev(xs), 1e-9)
	assert.Equal(t, 0.0, StdDev([]float64{1}))
	assert.Equal(t, 0.0, PopStdDev(nil))
}

func TestDescribe(t *testing.T) {
	d := Describe([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, 5, d.Count)
	assert.Equal(t, 3.0, d.Median)
	assert.Equal(t, 3.0, d.Mean)
	assert.InDelta(t, 1.2, d.P5, 1e-12)
	assert.InDelta(t, 4.8, d.P95, 1e-12)

	assert.Equal(t, Distribution{}, Describe(nil))
}

func TestRobustNormalize(t *testing.T) {
	out := RobustNormalize([]float64{1, 2, 3, 4, 100})
	// median 3, MAD median(|2,1,0,1,97|) = 1
	assert.Equal(t, []float64{-2, -1, 0, 1, 97}, out)
}

func TestRobustNormalize_FallsBackToStd(t *testing.T) {
	// MAD is 0 because more than half the values equal the median.
	out := RobustNormalize([]float64{1, 1, 1, 4})
	std := PopStdDev([]float64{1, 1, 1, 4})
	assert.InDelta(t, 3/std, out[3], 1e-12)
	assert.Equal(t, 0.0, out[0])
}

func TestRobustNormalize_Constant(t *testing.T) {
	assert.Equal(t, []float64{0, 0, 0}, RobustNormalize([]float64{2, 2, 2}))
}
