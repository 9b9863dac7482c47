// Package trend computes per-point elevation change statistics over a
// merged track dataset: nan-aware height range across cycles, and rate
// of height change over time (dhdt) by linear regression.
package trend

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/deepice-data/atlmerge/internal/dataset"
)

// NanosPerYear converts a per-nanosecond slope to a per-year rate.
const NanosPerYear = 365.25 * 24 * 60 * 60 * 1e9

// Options tune the analysis. Zero values take the defaults below.
type Options struct {
	// MinValid is the minimum number of valid heights a point needs to
	// be considered at all. Two points are needed to draw a trend.
	MinValid int
	// MinRange filters to points whose height range exceeds this many
	// metres; rapid short-term change is the signal of interest.
	MinRange float64
}

const (
	DefaultMinValid = 2
	DefaultMinRange = 0.25
)

// Result holds one point's regression parameters.
type Result struct {
	Slope     float64 // per unit of x
	Intercept float64
	R         float64
	P         float64
	StdErr    float64
}

// NaNRange returns max minus min ignoring NaN values, or NaN if fewer
// than two values are valid.
func NaNRange(values []float64) float64 {
	min, max := math.Inf(1), math.Inf(-1)
	valid := 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		valid++
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if valid < 2 {
		return math.NaN()
	}
	return max - min
}

// CountValid counts non-NaN values.
func CountValid(values []float64) int {
	n := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// NaNLinregress regresses y on x, ignoring pairs where either side is
// NaN. Fewer than two valid pairs yields all-NaN parameters.
func NaNLinregress(x, y []float64) Result {
	var xs, ys []float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	n := len(xs)
	if n < 2 {
		nan := math.NaN()
		return Result{Slope: nan, Intercept: nan, R: nan, P: nan, StdErr: nan}
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	r := stat.Correlation(xs, ys, nil)

	res := Result{Slope: slope, Intercept: intercept, R: r}
	if n == 2 {
		// A two-point fit is exact: no residual degrees of freedom.
		res.P = math.NaN()
		res.StdErr = math.NaN()
		return res
	}

	xMean := stat.Mean(xs, nil)
	var ssRes, ssX float64
	for i := range xs {
		resid := ys[i] - (intercept + slope*xs[i])
		ssRes += resid * resid
		dx := xs[i] - xMean
		ssX += dx * dx
	}
	df := float64(n - 2)
	res.StdErr = math.Sqrt(ssRes / df / ssX)

	if res.StdErr == 0 {
		res.P = 0
		return res
	}
	t := slope / res.StdErr
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	res.P = 2 * tDist.CDF(-math.Abs(t))
	return res
}

// Analyze computes h_range and dhdt over a dataset carrying a 2-D
// height variable and a matching 2-D time variable (nanoseconds). The
// returned dataset holds only the points passing the thresholds, with
// the regression parameters as 1-D variables and dhdt_slope already
// converted to a per-year rate.
func Analyze(ds *dataset.Dataset, heightVar, timeVar string, opts Options) (*dataset.Dataset, error) {
	if opts.MinValid == 0 {
		opts.MinValid = DefaultMinValid
	}
	if opts.MinRange == 0 {
		opts.MinRange = DefaultMinRange
	}

	h := ds.Var(heightVar)
	tv := ds.Var(timeVar)
	if h == nil || tv == nil {
		return nil, fmt.Errorf("%w: need %q and %q", dataset.ErrVarNotFound, heightVar, timeVar)
	}
	if !h.IsCycled() || !tv.IsCycled() {
		return nil, fmt.Errorf("%w: %q and %q must carry the cycle dimension", dataset.ErrShape, heightVar, timeVar)
	}

	// Pass 1: select points with enough valid heights and enough range.
	var keep []int
	var ranges []float64
	for i := 0; i < ds.Len(); i++ {
		row, err := ds.Row(heightVar, i)
		if err != nil {
			return nil, err
		}
		if CountValid(row) < opts.MinValid {
			continue
		}
		hr := NaNRange(row)
		if !(hr > opts.MinRange) {
			continue
		}
		keep = append(keep, i)
		ranges = append(ranges, hr)
	}

	out := ds.Select(keep)
	if err := out.AddVar("h_range", &dataset.Variable{
		Dims:   []string{dataset.IndexDim},
		Values: ranges,
		Attrs:  map[string]string{"units": "metres", "long_name": "height range across cycles"},
	}); err != nil {
		return nil, err
	}

	// Pass 2: regression per retained point.
	n := len(keep)
	slope := make([]float64, n)
	intercept := make([]float64, n)
	rValue := make([]float64, n)
	pValue := make([]float64, n)
	stdErr := make([]float64, n)
	for i := 0; i < n; i++ {
		ts, err := out.Row(timeVar, i)
		if err != nil {
			return nil, err
		}
		hs, err := out.Row(heightVar, i)
		if err != nil {
			return nil, err
		}
		res := NaNLinregress(ts, hs)
		slope[i] = res.Slope * NanosPerYear
		intercept[i] = res.Intercept
		rValue[i] = res.R
		pValue[i] = res.P
		stdErr[i] = res.StdErr
	}

	outputs := []struct {
		name   string
		values []float64
		units  string
	}{
		{"dhdt_slope", slope, "metres/year"},
		{"dhdt_intercept", intercept, "metres"},
		{"dhdt_r_value", rValue, ""},
		{"dhdt_p_value", pValue, ""},
		{"dhdt_std_err", stdErr, ""},
	}
	for _, o := range outputs {
		attrs := map[string]string{}
		if o.units != "" {
			attrs["units"] = o.units
		}
		if err := out.AddVar(o.name, &dataset.Variable{
			Dims:   []string{dataset.IndexDim},
			Values: o.values,
			Attrs:  attrs,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
