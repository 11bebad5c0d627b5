// Project: PCA+ARIMA Macroeconomic Scenario Forecasting
// Tests for the pipeline stages: normalization, factor extraction, selection,
// reconstruction, scenario generation, and a full linear-relations run.

package main

import (
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// testPanel builds a panel from per-variable columns with synthetic period
// labels.
func testPanel(t *testing.T, names []string, cols [][]float64) *Panel {
	t.Helper()
	require.NotEmpty(t, cols)
	n := len(cols[0])
	flat := make([]float64, 0, n*len(cols))
	for i := 0; i < n; i++ {
		for _, col := range cols {
			require.Len(t, col, n)
			flat = append(flat, col[i])
		}
	}
	periods := make([]string, n)
	for i := range periods {
		periods[i] = fmt.Sprintf("T%02d", i+1)
	}
	return &Panel{Y: mat.NewDense(n, len(cols), flat), Periods: periods, VarNames: names}
}

// latentSeries is a trending seasonal series used across the tests.
func latentSeries(n int) []float64 {
	season := []float64{2, -1, 0.5, -1.5}
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5*float64(i) + season[i%4]
	}
	return out
}

func affine(xs []float64, scale, shift float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = scale*v + shift
	}
	return out
}

func TestNormalizeMomentsAndRoundTrip(t *testing.T) {
	f := latentSeries(24)
	panel := testPanel(t, []string{"gdp", "cpi"}, [][]float64{f, affine(f, -3, 10)})

	normalized, params, err := Normalize(panel, panel)
	require.NoError(t, err)

	rows, cols := normalized.Dims()
	require.Equal(t, 24, rows)
	require.Equal(t, 2, cols)

	for j, name := range normalized.VarNames {
		col := normalized.Column(j)
		assert.InDelta(t, 0, stat.Mean(col, nil), 1e-9, "mean of %s", name)
		assert.InDelta(t, 1, stat.StdDev(col, nil), 1e-9, "std of %s", name)

		orig := panel.Column(j)
		for i, v := range col {
			assert.InDelta(t, orig[i], v*params.Std[name]+params.Mean[name], 1e-9)
		}
		assert.Contains(t, params.RefStd, name)
		assert.GreaterOrEqual(t, params.Max[name], params.Min[name])
	}
}

func TestNormalizeErrors(t *testing.T) {
	f := latentSeries(12)
	constant := make([]float64, 12)
	for i := range constant {
		constant[i] = 7
	}

	tests := []struct {
		name  string
		panel *Panel
		ref   *Panel
	}{
		{
			name:  "empty panel",
			panel: &Panel{Y: &mat.Dense{}},
			ref:   testPanel(t, []string{"a"}, [][]float64{f}),
		},
		{
			name:  "zero variance variable",
			panel: testPanel(t, []string{"a", "b"}, [][]float64{f, constant}),
			ref:   testPanel(t, []string{"a", "b"}, [][]float64{f, f}),
		},
		{
			name:  "variable missing from reference panel",
			panel: testPanel(t, []string{"a", "b"}, [][]float64{f, affine(f, 2, 0)}),
			ref:   testPanel(t, []string{"a"}, [][]float64{f}),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Normalize(tc.panel, tc.ref)
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestExtractFactorsCollinearPanel(t *testing.T) {
	f := latentSeries(40)
	panel := testPanel(t, []string{"x1", "x2", "x3"},
		[][]float64{f, affine(f, 2, 3), affine(f, -1, 1)})
	normalized, _, err := Normalize(panel, panel)
	require.NoError(t, err)

	fm, err := ExtractFactors(normalized, 0.8)
	require.NoError(t, err)

	assert.Equal(t, 1, fm.NumFactors)
	assert.GreaterOrEqual(t, fm.CumulativeExplained(), 0.8)
	rows, cols := fm.Scores.Dims()
	assert.Equal(t, 40, rows)
	assert.Equal(t, 1, cols)
	assert.False(t, isDegenerate(fm.FactorSeries(0)))
}

func TestExtractFactorsThresholdMonotonic(t *testing.T) {
	n := 36
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = math.Sin(float64(i) * 0.7)
		b[i] = math.Cos(float64(i) * 1.3)
		c[i] = float64(i) + 0.2*math.Sin(float64(i)*2.1)
	}
	panel := testPanel(t, []string{"a", "b", "c"}, [][]float64{a, b, c})
	normalized, _, err := Normalize(panel, panel)
	require.NoError(t, err)

	prev := 0
	for _, threshold := range []float64{0.3, 0.6, 0.9, 0.999} {
		fm, err := ExtractFactors(normalized, threshold)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, fm.NumFactors, prev, "threshold %v", threshold)
		assert.LessOrEqual(t, fm.NumFactors, 3)
		if fm.NumFactors < 3 {
			assert.GreaterOrEqual(t, fm.CumulativeExplained(), threshold)
		}
		prev = fm.NumFactors
	}
}

func TestExtractFactorsTooFewVariables(t *testing.T) {
	panel := testPanel(t, []string{"only"}, [][]float64{latentSeries(12)})
	_, err := ExtractFactors(panel, 0.8)
	require.ErrorIs(t, err, ErrDimensionality)
}

func TestPassesScreenBoundaries(t *testing.T) {
	cfg := DefaultConfig() // p < 0.1, r2 > 0.05

	tests := []struct {
		name   string
		p, r2  float64
		wanted bool
	}{
		{"both comfortably inside", 0.01, 0.5, true},
		{"p exactly at threshold", 0.1, 0.5, false},
		{"p just under threshold", 0.0999, 0.5, true},
		{"r2 exactly at threshold", 0.01, 0.05, false},
		{"r2 just above threshold", 0.01, 0.0501, true},
		{"NaN p-value", math.NaN(), 0.5, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wanted, passesScreen(tc.p, tc.r2, cfg))
		})
	}
}

// factorModelFromSeries wraps raw series as a factor model for stage tests.
func factorModelFromSeries(series ...[]float64) *FactorModel {
	n := len(series[0])
	flat := make([]float64, 0, n*len(series))
	for i := 0; i < n; i++ {
		for _, s := range series {
			flat = append(flat, s[i])
		}
	}
	periods := make([]string, n)
	for i := range periods {
		periods[i] = fmt.Sprintf("T%02d", i+1)
	}
	explained := make([]float64, len(series))
	for i := range explained {
		explained[i] = 1 / float64(len(series))
	}
	return &FactorModel{
		Scores:     mat.NewDense(n, len(series), flat),
		Components: mat.NewDense(len(series), len(series), nil),
		Explained:  explained,
		NumFactors: len(series),
		Periods:    periods,
	}
}

func TestSelectFactorsRecoversLinearModel(t *testing.T) {
	n := 20
	f := make([]float64, n)
	noise := make([]float64, n)
	for i := 0; i < n; i++ {
		f[i] = float64(i) - 9.5
		if i%2 == 0 {
			noise[i] = 1
		} else {
			noise[i] = -1
		}
	}
	panel := testPanel(t, []string{"driven", "unrelated"},
		[][]float64{affine(f, 2, 3), noise})
	fm := factorModelFromSeries(f)
	cfg := DefaultConfig()

	records, screening, err := SelectFactors(panel, fm, cfg)
	require.NoError(t, err)

	require.Len(t, screening, 2)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "driven", rec.Variable)
	assert.Equal(t, []int{0}, rec.Factors)
	assert.InDelta(t, 2, rec.Coefficients[0], 1e-9)
	assert.InDelta(t, 3, rec.Intercept, 1e-9)

	c, ok := rec.coeff(0)
	require.True(t, ok)
	assert.InDelta(t, 2, c, 1e-9)
	_, ok = rec.coeff(7)
	assert.False(t, ok)
	assert.InDelta(t, 1, rec.R2, 1e-9)

	// A near-exact fit leaves nothing for the p-value diagnostics to flag.
	assert.GreaterOrEqual(t, rec.ResetTest, 0.0)
	assert.LessOrEqual(t, rec.ResetTest, 1.0)
	assert.GreaterOrEqual(t, rec.JarqueBera, 0.0)
	assert.LessOrEqual(t, rec.JarqueBera, 1.0)
	assert.GreaterOrEqual(t, rec.BreuschPagan, 0.0)
	assert.LessOrEqual(t, rec.BreuschPagan, 1.0)
	assert.GreaterOrEqual(t, rec.DurbinWatson, 0.0)
	assert.LessOrEqual(t, rec.DurbinWatson, 4.0)
	require.Len(t, rec.VIF, 2)
	for _, v := range rec.VIF {
		assert.False(t, math.IsNaN(v))
	}

	for _, s := range screening {
		if s.Variable == "unrelated" {
			assert.False(t, s.Retained)
		} else {
			assert.True(t, s.Retained)
		}
	}
}

func TestSelectFactorsSkipsDegenerateFactor(t *testing.T) {
	n := 20
	f := latentSeries(n)
	constant := make([]float64, n)
	for i := range constant {
		constant[i] = 0.5
	}
	panel := testPanel(t, []string{"driven"}, [][]float64{affine(f, 1.5, -2)})
	fm := factorModelFromSeries(f, constant)

	records, screening, err := SelectFactors(panel, fm, DefaultConfig())
	require.NoError(t, err)

	// The constant factor produces no screening row and no regressor.
	require.Len(t, screening, 1)
	assert.Equal(t, 0, screening[0].Factor)
	require.Len(t, records, 1)
	assert.Equal(t, []int{0}, records[0].Factors)
}

func TestSelectFactorsRankDeficientDesign(t *testing.T) {
	n := 20
	f := make([]float64, n)
	for i := range f {
		f[i] = float64(i) - 9.5
	}
	panel := testPanel(t, []string{"driven"}, [][]float64{affine(f, 2, 3)})

	// Two identical factor series both pass the screen, so the joint fit's
	// design matrix is perfectly collinear.
	fm := factorModelFromSeries(f, f)

	_, _, err := SelectFactors(panel, fm, DefaultConfig())
	require.ErrorIs(t, err, ErrRegression)
}

func forecastFromValues(values []float64) *FactorForecast {
	periods := make([]string, len(values))
	for i := range periods {
		periods[i] = fmt.Sprintf("F%d", i+1)
	}
	return &FactorForecast{
		Periods:    periods,
		Values:     mat.NewDense(len(values), 1, values),
		NumFactors: 1,
		Orders:     []ArimaOrder{{M: 4}},
	}
}

func identityParams(names ...string) *NormalizationParams {
	p := &NormalizationParams{
		Mean:   map[string]float64{},
		Std:    map[string]float64{},
		RefStd: map[string]float64{},
		Max:    map[string]float64{},
		Min:    map[string]float64{},
		RefMax: map[string]float64{},
		RefMin: map[string]float64{},
	}
	for _, name := range names {
		p.Mean[name] = 0
		p.Std[name] = 1
		p.RefStd[name] = 1
	}
	return p
}

func TestReconstructKeyedJoin(t *testing.T) {
	ff := forecastFromValues([]float64{1, -2, 0.5})
	records := []RegressionRecord{{
		Variable:     "gdp",
		Factors:      []int{0},
		Intercept:    3,
		Coefficients: []float64{2},
	}}

	table, err := Reconstruct(ff, records, identityParams("gdp"))
	require.NoError(t, err)

	require.Equal(t, []string{"gdp"}, table.VarNames)
	for h, fv := range []float64{1, -2, 0.5} {
		v, ok := table.valueByName(h, "gdp")
		require.True(t, ok)
		assert.InDelta(t, 3+2*fv, v, 1e-12)
	}

	// Linearity: doubling the factor path doubles the non-intercept part.
	doubled, err := Reconstruct(forecastFromValues([]float64{2, -4, 1}), records, identityParams("gdp"))
	require.NoError(t, err)
	for h := 0; h < 3; h++ {
		v1, _ := table.valueByName(h, "gdp")
		v2, _ := doubled.valueByName(h, "gdp")
		assert.InDelta(t, 2*(v1-3), v2-3, 1e-12)
	}
}

func TestReconstructErrors(t *testing.T) {
	ff := forecastFromValues([]float64{1, 2})

	t.Run("no records", func(t *testing.T) {
		_, err := Reconstruct(ff, nil, identityParams())
		require.ErrorIs(t, err, ErrReconstruction)
	})

	t.Run("record references missing factor", func(t *testing.T) {
		records := []RegressionRecord{{
			Variable: "gdp", Factors: []int{5}, Coefficients: []float64{1},
		}}
		_, err := Reconstruct(ff, records, identityParams("gdp"))
		require.ErrorIs(t, err, ErrReconstruction)
	})

	t.Run("missing normalization parameters", func(t *testing.T) {
		records := []RegressionRecord{{
			Variable: "gdp", Factors: []int{0}, Coefficients: []float64{1},
		}}
		_, err := Reconstruct(ff, records, identityParams("cpi"))
		require.ErrorIs(t, err, ErrReconstruction)
	})
}

func TestGenerateScenariosSymmetry(t *testing.T) {
	base := &ForecastTable{
		Periods:  []string{"F1", "F2"},
		VarNames: []string{"gdp", "unemployment"},
		Values:   mat.NewDense(2, 2, []float64{1.7, 4.2, -0.3, 5.1}),
	}
	params := identityParams("gdp", "unemployment")
	params.RefStd["gdp"] = 1.5
	params.RefStd["unemployment"] = 0.4
	signs := map[string]float64{"gdp": 1, "unemployment": -1}
	cfg := DefaultConfig()

	set, err := GenerateScenarios(base, params, signs, cfg)
	require.NoError(t, err)

	for j, name := range base.VarNames {
		offNormal := cfg.NNormal * params.RefStd[name] * signs[name]
		offExtreme := cfg.NExtreme * params.RefStd[name] * signs[name]
		for h := 0; h < 2; h++ {
			b := base.Values.At(h, j)
			assert.Equal(t, b+offNormal, set.Optimistic.Values.At(h, j))
			assert.Equal(t, b-offNormal, set.Pessimistic.Values.At(h, j))
			assert.Equal(t, b+offExtreme, set.ExtremeOptimistic.Values.At(h, j))
			assert.Equal(t, b-offExtreme, set.ExtremePessimistic.Values.At(h, j))
		}
	}

	// The negative sign flips the optimistic direction downward.
	gdpUp := set.Optimistic.Values.At(0, 0) > base.Values.At(0, 0)
	unempUp := set.Optimistic.Values.At(0, 1) > base.Values.At(0, 1)
	assert.True(t, gdpUp)
	assert.False(t, unempUp)
}

func TestGenerateScenariosMissingSign(t *testing.T) {
	base := &ForecastTable{
		Periods:  []string{"F1"},
		VarNames: []string{"gdp"},
		Values:   mat.NewDense(1, 1, []float64{1}),
	}
	_, err := GenerateScenarios(base, identityParams("gdp"), map[string]float64{}, DefaultConfig())
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestDiagnosticsOnKnownResiduals(t *testing.T) {
	zeros := make([]float64, 12)
	assert.Equal(t, 2.0, durbinWatson(zeros))
	assert.Equal(t, 1.0, jarqueBera(zeros))
	assert.Equal(t, 1.0, breuschPagan(zeros, [][]float64{latentSeries(12)}))

	alternating := []float64{1, -1, 1, -1}
	assert.Equal(t, 3.0, durbinWatson(alternating))
}

func TestExtendPeriods(t *testing.T) {
	t.Run("quarter end dates stay on quarter ends", func(t *testing.T) {
		got := extendPeriods([]string{"2014-12-31", "2015-03-31"}, 4)
		assert.Equal(t, []string{"2015-06-30", "2015-09-30", "2015-12-31", "2016-03-31"}, got)
	})

	t.Run("monthly spacing", func(t *testing.T) {
		got := extendPeriods([]string{"2020-01-15", "2020-02-15"}, 2)
		assert.Equal(t, []string{"2020-03-15", "2020-04-15"}, got)
	})

	t.Run("non-date labels fall back to relative labels", func(t *testing.T) {
		got := extendPeriods([]string{"Q1", "Q2"}, 3)
		assert.Equal(t, []string{"T+1", "T+2", "T+3"}, got)
	})
}

func TestForecastFactorsShortSeries(t *testing.T) {
	short := []float64{1, 2, 3, 4, 5, 6}
	fm := factorModelFromSeries(short)
	cfg := DefaultConfig()
	cfg.PredictPeriod = 4

	_, err := ForecastFactors(fm, cfg)
	require.ErrorIs(t, err, ErrForecast)
}

func TestRunPipelineLinearRelations(t *testing.T) {
	f := latentSeries(40)
	panel := testPanel(t, []string{"x1", "x2", "x3"},
		[][]float64{f, affine(f, 2, 3), affine(f, -1, 1)})
	signs := map[string]float64{"x1": 1, "x2": 1, "x3": -1}

	cfg := DefaultConfig()
	cfg.PredictPeriod = 4
	cfg.Workers = 2

	result, err := RunPipeline(panel, panel, signs, cfg, zerolog.Nop())
	require.NoError(t, err)

	require.Equal(t, 1, result.Factors.NumFactors)
	require.Len(t, result.Records, 3)

	base := result.Scenarios.Base
	require.Len(t, base.Periods, 4)
	for h := 0; h < 4; h++ {
		v1, ok := base.valueByName(h, "x1")
		require.True(t, ok)
		v2, ok := base.valueByName(h, "x2")
		require.True(t, ok)
		v3, ok := base.valueByName(h, "x3")
		require.True(t, ok)

		assert.InDelta(t, 2*v1+3, v2, 1e-6, "step %d", h)
		assert.InDelta(t, -v1+1, v3, 1e-6, "step %d", h)
		assert.False(t, math.IsNaN(v1))
	}

	// Scenario bands sit on the configured multiples of the reference std.
	for _, name := range []string{"x1", "x2", "x3"} {
		off := cfg.NNormal * result.Params.RefStd[name] * signs[name]
		b, _ := base.valueByName(0, name)
		o, _ := result.Scenarios.Optimistic.valueByName(0, name)
		assert.InDelta(t, b+off, o, 1e-12)
	}
}
