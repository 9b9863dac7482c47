package trend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepice-data/atlmerge/internal/dataset"
)

func TestNaNRange(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	cases := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"plain", []float64{1, 4, 2.5}, 3},
		{"ignores nan", []float64{nan, 1, nan, 5}, 4},
		{"single valid", []float64{nan, 3, nan}, nan},
		{"all nan", []float64{nan, nan}, nan},
		{"empty", nil, nan},
		{"constant", []float64{2, 2, 2}, 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := NaNRange(tc.values)
			if math.IsNaN(tc.want) {
				assert.True(t, math.IsNaN(got))
			} else {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestCountValid(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	assert.Equal(t, 0, CountValid(nil))
	assert.Equal(t, 0, CountValid([]float64{nan, nan}))
	assert.Equal(t, 2, CountValid([]float64{nan, 1, nan, 2}))
}

func TestNaNLinregressExactFit(t *testing.T) {
	t.Parallel()

	x := []float64{0, 1, 2, 3, 4}
	y := []float64{1, 3, 5, 7, 9} // y = 2x + 1

	res := NaNLinregress(x, y)
	assert.InDelta(t, 2, res.Slope, 1e-12)
	assert.InDelta(t, 1, res.Intercept, 1e-12)
	assert.InDelta(t, 1, res.R, 1e-12)
	// A perfect fit has (numerically near) zero residual.
	assert.InDelta(t, 0, res.StdErr, 1e-9)
	assert.InDelta(t, 0, res.P, 1e-9)
}

func TestNaNLinregressSkipsNaNPairs(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	x := []float64{0, nan, 2, 3, 4}
	y := []float64{1, 100, nan, 7, 9}

	res := NaNLinregress(x, y)
	// Only (0,1), (3,7), (4,9) survive, still on y = 2x + 1.
	assert.InDelta(t, 2, res.Slope, 1e-12)
	assert.InDelta(t, 1, res.Intercept, 1e-12)
}

func TestNaNLinregressNoisyFit(t *testing.T) {
	t.Parallel()

	x := []float64{0, 1, 2, 3, 4, 5}
	y := []float64{0.1, 0.9, 2.2, 2.8, 4.1, 4.9}

	res := NaNLinregress(x, y)
	assert.InDelta(t, 1, res.Slope, 0.05)
	assert.Greater(t, res.StdErr, 0.0)
	assert.Greater(t, res.P, 0.0)
	assert.Less(t, res.P, 0.01)
}

func TestNaNLinregressDegenerate(t *testing.T) {
	t.Parallel()

	t.Run("too few points", func(t *testing.T) {
		t.Parallel()
		res := NaNLinregress([]float64{1}, []float64{2})
		assert.True(t, math.IsNaN(res.Slope))
		assert.True(t, math.IsNaN(res.P))
	})

	t.Run("two points exact", func(t *testing.T) {
		t.Parallel()
		res := NaNLinregress([]float64{0, 1}, []float64{1, 3})
		assert.InDelta(t, 2, res.Slope, 1e-12)
		assert.True(t, math.IsNaN(res.P))
		assert.True(t, math.IsNaN(res.StdErr))
	})
}

// trendFixture builds a 3-point dataset with two cycles per year over
// four cycles. Point 0 thins 1 m/yr, point 1 is flat (filtered by
// range), point 2 has a single valid height (filtered by count).
func trendFixture(t *testing.T) *dataset.Dataset {
	t.Helper()
	nan := math.NaN()
	const halfYear = NanosPerYear / 2

	ds := dataset.New([]int64{10, 20, 30})
	times := make([]float64, 0, 12)
	for p := 0; p < 3; p++ {
		for c := 0; c < 4; c++ {
			times = append(times, float64(c)*halfYear)
		}
	}
	require.NoError(t, ds.AddVar("delta_time", &dataset.Variable{
		Dims:   []string{dataset.IndexDim, dataset.CycleDim},
		Values: times,
	}))
	require.NoError(t, ds.AddVar("h_corr", &dataset.Variable{
		Dims: []string{dataset.IndexDim, dataset.CycleDim},
		Values: []float64{
			100, 99.5, 99, 98.5,
			50, 50.05, 50.02, 50.04,
			nan, 7, nan, nan,
		},
	}))
	return ds
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	ds := trendFixture(t)
	out, err := Analyze(ds, "h_corr", "delta_time", Options{})
	require.NoError(t, err)

	// Only the thinning point survives the thresholds.
	require.Equal(t, 1, out.Len())
	assert.Equal(t, int64(10), out.Index[0])

	hr := out.Var("h_range")
	require.NotNil(t, hr)
	assert.InDelta(t, 1.5, hr.Values[0], 1e-9)

	slope := out.Var("dhdt_slope")
	require.NotNil(t, slope)
	assert.InDelta(t, -1, slope.Values[0], 1e-6)
	assert.Equal(t, "metres/year", slope.Attrs["units"])

	intercept := out.Var("dhdt_intercept")
	require.NotNil(t, intercept)
	assert.InDelta(t, 100, intercept.Values[0], 1e-6)

	r := out.Var("dhdt_r_value")
	require.NotNil(t, r)
	assert.InDelta(t, -1, r.Values[0], 1e-9)

	// Input variables come along for the ride.
	assert.NotNil(t, out.Var("h_corr"))
	assert.NotNil(t, out.Var("delta_time"))
}

func TestAnalyzeThresholds(t *testing.T) {
	t.Parallel()

	ds := trendFixture(t)
	// Loosen the range threshold enough to admit the flat point too.
	out, err := Analyze(ds, "h_corr", "delta_time", Options{MinRange: 0.01})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestAnalyzeErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing variable", func(t *testing.T) {
		t.Parallel()
		ds := dataset.New([]int64{1})
		_, err := Analyze(ds, "h_corr", "delta_time", Options{})
		assert.ErrorIs(t, err, dataset.ErrVarNotFound)
	})

	t.Run("height not cycled", func(t *testing.T) {
		t.Parallel()
		ds := dataset.New([]int64{1})
		require.NoError(t, ds.AddVar("h_corr", &dataset.Variable{
			Dims:   []string{dataset.IndexDim},
			Values: []float64{1},
		}))
		require.NoError(t, ds.AddVar("delta_time", &dataset.Variable{
			Dims:   []string{dataset.IndexDim},
			Values: []float64{1},
		}))
		_, err := Analyze(ds, "h_corr", "delta_time", Options{})
		assert.ErrorIs(t, err, dataset.ErrShape)
	})
}
