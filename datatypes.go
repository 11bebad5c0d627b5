// Project: PCA+ARIMA Macroeconomic Scenario Forecasting
// Factor-based batch pipeline: PCA compression, regression screening,
// seasonal ARIMA factor forecasts, reconstruction and scenario bands.

package main

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Error kinds for the pipeline stages. Every stage validates its own
// preconditions and wraps the triggering condition with one of these, so
// callers can classify failures with errors.Is. A failure in any stage
// aborts the whole run; there is no partial-result mode.
var (
	// ErrConfiguration marks invalid or missing configuration and input shape
	// problems (empty panels, zero-variance columns, missing sign entries).
	ErrConfiguration = errors.New("configuration error")

	// ErrDimensionality marks violated decomposition preconditions
	// (fewer than 2 columns, NaN-contaminated projections).
	ErrDimensionality = errors.New("dimensionality error")

	// ErrRegression marks a degenerate design matrix (perfect collinearity).
	ErrRegression = errors.New("regression error")

	// ErrForecast marks insufficient history or a non-converging model fit.
	ErrForecast = errors.New("forecast error")

	// ErrReconstruction marks a failed factor/forecast join.
	ErrReconstruction = errors.New("reconstruction error")
)

// Panel is a time-indexed table of macro variables. Rows are periods in
// ascending order with regular spacing, columns are named variables.
// After loading and interpolation it contains no missing values.
type Panel struct {
	// Y holds the values, T rows (periods) by K columns (variables).
	Y *mat.Dense
	// Periods holds the row labels, e.g. "2015-12-31".
	Periods []string
	// VarNames holds the column labels in Y's column order.
	VarNames []string
}

// Dims returns the number of periods and variables.
func (p *Panel) Dims() (rows, cols int) {
	if p == nil || p.Y == nil {
		return 0, 0
	}
	return p.Y.Dims()
}

// Column returns a copy of the values for column j.
func (p *Panel) Column(j int) []float64 {
	rows, _ := p.Dims()
	dst := make([]float64, rows)
	mat.Col(dst, j, p.Y)
	return dst
}

// ColumnByName returns a copy of the named variable's series.
func (p *Panel) ColumnByName(name string) ([]float64, bool) {
	for j, v := range p.VarNames {
		if v == name {
			return p.Column(j), true
		}
	}
	return nil, false
}

// Select returns a new panel restricted to the given variables, in the given
// order. A variable missing from the panel is an error, never skipped.
func (p *Panel) Select(names []string) (*Panel, error) {
	rows, _ := p.Dims()
	out := mat.NewDense(rows, len(names), nil)
	for j, name := range names {
		col, ok := p.ColumnByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: variable %q not present in panel", ErrConfiguration, name)
		}
		out.SetCol(j, col)
	}
	periods := make([]string, rows)
	copy(periods, p.Periods)
	sel := make([]string, len(names))
	copy(sel, names)
	return &Panel{Y: out, Periods: periods, VarNames: sel}, nil
}

// NormalizationParams holds the per-variable standardization scalars computed
// from one panel snapshot. Immutable once computed: the primary-window mean
// and std drive normalization and de-normalization, the reference-window std
// drives scenario band width only. Max/min are informational.
type NormalizationParams struct {
	Mean   map[string]float64
	Std    map[string]float64
	RefStd map[string]float64

	Max    map[string]float64
	Min    map[string]float64
	RefMax map[string]float64
	RefMin map[string]float64
}

// FactorModel is the fitted decomposition: factor scores aligned with the
// panel's time index plus the basis and explained-variance ratios retained
// for provenance. The basis is not reused downstream.
type FactorModel struct {
	// Scores holds the factor series, T rows by NumFactors columns.
	Scores *mat.Dense
	// Components holds the principal directions, one column per factor.
	Components *mat.Dense
	// Explained holds the explained-variance ratios for every available
	// component, in decreasing order; only the first NumFactors are kept
	// as factors.
	Explained []float64
	// NumFactors is the smallest k whose cumulative explained-variance
	// ratio reaches the threshold, capped at min(rows, cols).
	NumFactors int
	// Periods mirrors the source panel's row labels.
	Periods []string
}

// FactorSeries returns a copy of factor i's full-length series.
func (fm *FactorModel) FactorSeries(i int) []float64 {
	rows, _ := fm.Scores.Dims()
	dst := make([]float64, rows)
	mat.Col(dst, i, fm.Scores)
	return dst
}

// ScreeningResult records one univariate (variable, factor) regression from
// the selection screen.
type ScreeningResult struct {
	Variable string
	Factor   int
	R2       float64
	PValue   float64
	Retained bool
}

// RegressionRecord is the fitted multivariate relationship between one
// variable and its retained factors, with the diagnostic statistics computed
// at fit time. Records are created once during selection and never mutated.
type RegressionRecord struct {
	Variable string
	// Factors holds the retained factor indices; Coefficients is aligned
	// with it. The intercept is stored separately and always multiplies 1.
	Factors      []int
	Intercept    float64
	Coefficients []float64
	// PValues holds the coefficient p-values: intercept first, then one
	// per retained factor.
	PValues []float64
	R2      float64

	// Diagnostics of the multivariate fit.
	ResetTest    float64   // Ramsey RESET (quadratic fitted term) F-test p-value
	DurbinWatson float64   // serial correlation statistic
	JarqueBera   float64   // residual normality p-value
	BreuschPagan float64   // heteroskedasticity LM-test p-value
	VIF          []float64 // variance inflation per regressor, intercept first
}

// coeff returns the coefficient for the given factor index, keyed lookup
// with no default; a factor missing from the record reports !ok.
func (r *RegressionRecord) coeff(factor int) (float64, bool) {
	for i, f := range r.Factors {
		if f == factor {
			if i >= len(r.Coefficients) {
				return 0, false
			}
			return r.Coefficients[i], true
		}
	}
	return 0, false
}

// FactorForecast holds the point forecasts for every factor over the
// requested horizon. Produced once by the forecaster and consumed read-only
// by the reconstructor.
type FactorForecast struct {
	// Periods labels the future rows, continuing the panel's frequency.
	Periods []string
	// Values is horizon rows by NumFactors columns.
	Values     *mat.Dense
	NumFactors int
	// Orders records the SARIMA order selected per factor, for review.
	Orders []ArimaOrder
}

// At returns the forecast for a period row and factor index. A factor index
// outside the table reports !ok so joins fail closed instead of zero-filling.
func (ff *FactorForecast) At(period, factor int) (float64, bool) {
	rows, cols := ff.Values.Dims()
	if period < 0 || period >= rows || factor < 0 || factor >= cols {
		return 0, false
	}
	return ff.Values.At(period, factor), true
}

// ForecastTable is one scenario's de-normalized forecast: future periods by
// reconstructed variables. Terminal output, written once.
type ForecastTable struct {
	Periods  []string
	VarNames []string
	Values   *mat.Dense
}

// valueByName returns the forecast for a period row and variable name.
func (t *ForecastTable) valueByName(period int, name string) (float64, bool) {
	for j, v := range t.VarNames {
		if v == name {
			return t.Values.At(period, j), true
		}
	}
	return 0, false
}

// ScenarioSet bundles the base forecast with the four derived bands.
type ScenarioSet struct {
	Base               *ForecastTable
	Optimistic         *ForecastTable
	Pessimistic        *ForecastTable
	ExtremeOptimistic  *ForecastTable
	ExtremePessimistic *ForecastTable
}

// Config carries the scalar knobs of the pipeline. Zero values are filled by
// DefaultConfig; Validate rejects out-of-range settings before any stage runs.
type Config struct {
	// VarianceThreshold is the cumulative explained-variance cutoff for the
	// factor count, in (0, 1).
	VarianceThreshold float64 `yaml:"variance_threshold"`
	// PValueThreshold is the screening significance cutoff (strict <).
	PValueThreshold float64 `yaml:"p_value_threshold"`
	// R2Threshold is the screening explanatory-power cutoff (strict >).
	R2Threshold float64 `yaml:"r2_threshold"`
	// PredictPeriod is the forecast horizon in periods.
	PredictPeriod int `yaml:"predict_period"`
	// SeasonalPeriod is the SARIMA seasonal cycle length (4 = quarterly).
	SeasonalPeriod int `yaml:"seasonal_period"`
	// NNormal and NExtreme scale the scenario band offsets.
	NNormal  float64 `yaml:"n_normal"`
	NExtreme float64 `yaml:"n_extreme"`

	// Order-search bounds for the automatic SARIMA fit.
	MaxP         int `yaml:"max_p"`
	MaxQ         int `yaml:"max_q"`
	MaxD         int `yaml:"max_d"`
	MaxSeasonalP int `yaml:"max_seasonal_p"`
	MaxSeasonalQ int `yaml:"max_seasonal_q"`

	// Workers bounds the per-factor fitting pool. Zero means NumCPU.
	Workers int `yaml:"workers"`

	// External file locations, used by the CLI only.
	DataCSV      string `yaml:"data_csv"`
	RefDataCSV   string `yaml:"ref_data_csv"`
	IndicatorCSV string `yaml:"indicator_csv"`
	OutputDir    string `yaml:"output_dir"`
}

// DefaultConfig mirrors the calibration the model was developed with.
func DefaultConfig() Config {
	return Config{
		VarianceThreshold: 0.8,
		PValueThreshold:   0.1,
		R2Threshold:       0.05,
		PredictPeriod:     9,
		SeasonalPeriod:    4,
		NNormal:           1,
		NExtreme:          3,
		MaxP:              5,
		MaxQ:              5,
		MaxD:              2,
		MaxSeasonalP:      1,
		MaxSeasonalQ:      1,
		OutputDir:         ".",
	}
}

// Validate rejects settings no stage could run with.
func (c *Config) Validate() error {
	if c.VarianceThreshold <= 0 || c.VarianceThreshold >= 1 {
		return fmt.Errorf("%w: variance_threshold must be in (0, 1), got %v", ErrConfiguration, c.VarianceThreshold)
	}
	if c.PValueThreshold <= 0 || c.PValueThreshold >= 1 {
		return fmt.Errorf("%w: p_value_threshold must be in (0, 1), got %v", ErrConfiguration, c.PValueThreshold)
	}
	if c.R2Threshold < 0 || c.R2Threshold >= 1 {
		return fmt.Errorf("%w: r2_threshold must be in [0, 1), got %v", ErrConfiguration, c.R2Threshold)
	}
	if c.PredictPeriod <= 0 {
		return fmt.Errorf("%w: predict_period must be > 0, got %d", ErrConfiguration, c.PredictPeriod)
	}
	if c.SeasonalPeriod < 1 {
		return fmt.Errorf("%w: seasonal_period must be >= 1, got %d", ErrConfiguration, c.SeasonalPeriod)
	}
	if c.NNormal < 0 || c.NExtreme < 0 {
		return fmt.Errorf("%w: scenario multipliers must be >= 0", ErrConfiguration)
	}
	if c.MaxP < 0 || c.MaxQ < 0 || c.MaxD < 0 || c.MaxSeasonalP < 0 || c.MaxSeasonalQ < 0 {
		return fmt.Errorf("%w: order bounds must be >= 0", ErrConfiguration)
	}
	return nil
}

// Result is the complete output of one pipeline run.
type Result struct {
	Params         *NormalizationParams
	Factors        *FactorModel
	Screening      []ScreeningResult
	Records        []RegressionRecord
	FactorForecast *FactorForecast
	Scenarios      *ScenarioSet
}

// isDegenerate reports whether a series has no variation or contains
// non-finite values; such factor series are skipped during screening.
func isDegenerate(xs []float64) bool {
	if len(xs) == 0 {
		return true
	}
	first := xs[0]
	varied := false
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
		if v != first {
			varied = true
		}
	}
	return !varied
}
