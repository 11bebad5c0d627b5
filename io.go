// Project: PCA+ARIMA Macroeconomic Scenario Forecasting
// CSV and YAML input/output: panel loading with gap interpolation, the
// indicator list, runtime configuration, and the result exports.

package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// LoadPanelCSV reads a wide panel: the first column holds period labels, the
// remaining columns one variable each. Empty cells become gaps, interior gaps
// are filled by linear interpolation, and rows still incomplete at either end
// of the sample are dropped.
func LoadPanelCSV(path string) (*Panel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open panel file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse panel file %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("panel file %s has no data rows", path)
	}

	header := rows[0]
	if len(header) < 2 {
		return nil, fmt.Errorf("panel file %s needs a period column and at least one variable", path)
	}
	varNames := make([]string, len(header)-1)
	for j := 1; j < len(header); j++ {
		varNames[j-1] = strings.TrimSpace(header[j])
	}

	n := len(rows) - 1
	periods := make([]string, n)
	data := make([][]float64, len(varNames))
	for j := range data {
		data[j] = make([]float64, n)
	}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) != len(header) {
			return nil, fmt.Errorf("panel file %s row %d has %d fields, expected %d", path, i+1, len(row), len(header))
		}
		periods[i-1] = strings.TrimSpace(row[0])
		for j := 1; j < len(row); j++ {
			cell := strings.TrimSpace(row[j])
			if cell == "" {
				data[j-1][i-1] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("panel file %s row %d column %q: invalid number %q", path, i+1, varNames[j-1], cell)
			}
			data[j-1][i-1] = v
		}
	}

	for j := range data {
		interpolateGaps(data[j])
	}

	// Trim rows that remain incomplete after interpolation. Only the ends
	// of the sample can still hold gaps.
	start, end := 0, n
	rowComplete := func(i int) bool {
		for j := range data {
			if math.IsNaN(data[j][i]) {
				return false
			}
		}
		return true
	}
	for start < end && !rowComplete(start) {
		start++
	}
	for end > start && !rowComplete(end-1) {
		end--
	}
	if start >= end {
		return nil, fmt.Errorf("panel file %s has no complete rows", path)
	}
	for i := start; i < end; i++ {
		if !rowComplete(i) {
			return nil, fmt.Errorf("panel file %s row %d remains incomplete after interpolation", path, i+2)
		}
	}

	kept := end - start
	panel := &Panel{Periods: periods[start:end], VarNames: varNames}
	flat := make([]float64, 0, kept*len(varNames))
	for i := start; i < end; i++ {
		for j := range data {
			flat = append(flat, data[j][i])
		}
	}
	panel.Y = mat.NewDense(kept, len(varNames), flat)
	return panel, nil
}

// interpolateGaps fills NaN runs that have finite values on both sides.
func interpolateGaps(xs []float64) {
	n := len(xs)
	for i := 0; i < n; i++ {
		if !math.IsNaN(xs[i]) {
			continue
		}
		lo := i - 1
		hi := i
		for hi < n && math.IsNaN(xs[hi]) {
			hi++
		}
		if lo < 0 || hi >= n {
			i = hi
			continue
		}
		step := (xs[hi] - xs[lo]) / float64(hi-lo)
		for k := lo + 1; k < hi; k++ {
			xs[k] = xs[lo] + step*float64(k-lo)
		}
		i = hi
	}
}

// LoadIndicatorList reads the indicator file: one row per variable with an
// inclusion flag and a scenario direction sign. Returns the included variable
// names in file order and the sign of every included variable.
func LoadIndicatorList(path string) ([]string, map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open indicator file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse indicator file %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("indicator file %s has no data rows", path)
	}

	var included []string
	signs := make(map[string]float64)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) < 3 {
			return nil, nil, fmt.Errorf("indicator file %s row %d needs indicator, included and sign fields", path, i+1)
		}
		name := strings.TrimSpace(row[0])
		flag := strings.ToUpper(strings.TrimSpace(row[1]))
		if flag != "Y" {
			continue
		}
		sign, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil || (sign != 1 && sign != -1) {
			return nil, nil, fmt.Errorf("indicator file %s row %d: sign must be 1 or -1, got %q", path, i+1, row[2])
		}
		included = append(included, name)
		signs[name] = sign
	}
	if len(included) == 0 {
		return nil, nil, fmt.Errorf("indicator file %s includes no variables", path)
	}
	return included, signs, nil
}

// LoadConfig reads the YAML run configuration over the defaults and
// validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteScenarioCSV exports one scenario table appended to the historical
// panel, so every output file holds the full trajectory per variable.
func WriteScenarioCSV(path string, historical *Panel, table *ForecastTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"period"}, table.VarNames...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}

	histCols := make([][]float64, len(table.VarNames))
	for j, name := range table.VarNames {
		col, ok := historical.ColumnByName(name)
		if !ok {
			return fmt.Errorf("variable %q of the forecast is missing from the historical panel", name)
		}
		histCols[j] = col
	}
	histRows, _ := historical.Dims()
	for i := 0; i < histRows; i++ {
		row := make([]string, 0, len(header))
		row = append(row, historical.Periods[i])
		for j := range histCols {
			row = append(row, formatFloat(histCols[j][i]))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row to %s: %w", path, err)
		}
	}

	fcRows, _ := table.Values.Dims()
	for i := 0; i < fcRows; i++ {
		row := make([]string, 0, len(header))
		row = append(row, table.Periods[i])
		for j := range table.VarNames {
			row = append(row, formatFloat(table.Values.At(i, j)))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row to %s: %w", path, err)
		}
	}

	w.Flush()
	return w.Error()
}

// WriteRecordsCSV exports the multivariate regressions in long format: one
// row per model term, with the model-level diagnostics repeated per row.
func WriteRecordsCSV(path string, records []RegressionRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"variable", "term", "coefficient", "p_value", "vif",
		"r_squared", "reset_p", "durbin_watson", "jarque_bera_p", "breusch_pagan_p",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}

	for _, rec := range records {
		terms := make([]string, 0, len(rec.Factors)+1)
		coeffs := make([]float64, 0, len(rec.Factors)+1)
		terms = append(terms, "Intercept")
		coeffs = append(coeffs, rec.Intercept)
		for i, fIdx := range rec.Factors {
			terms = append(terms, fmt.Sprintf("PC%d", fIdx+1))
			coeffs = append(coeffs, rec.Coefficients[i])
		}
		for t := range terms {
			row := []string{
				rec.Variable,
				terms[t],
				formatFloat(coeffs[t]),
				formatFloat(rec.PValues[t]),
				formatFloat(rec.VIF[t]),
				formatFloat(rec.R2),
				formatFloat(rec.ResetTest),
				formatFloat(rec.DurbinWatson),
				formatFloat(rec.JarqueBera),
				formatFloat(rec.BreuschPagan),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write row to %s: %w", path, err)
			}
		}
	}

	w.Flush()
	return w.Error()
}

// WriteScreeningCSV exports the univariate screening outcomes.
func WriteScreeningCSV(path string, screening []ScreeningResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"variable", "factor", "r_squared", "p_value", "retained"}); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	for _, s := range screening {
		row := []string{
			s.Variable,
			fmt.Sprintf("PC%d", s.Factor+1),
			formatFloat(s.R2),
			formatFloat(s.PValue),
			strconv.FormatBool(s.Retained),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row to %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteNormalizationParamsCSV exports the per-variable scalars behind the
// normalization and the scenario bands: primary-window mean/std and bounds,
// reference-window std and bounds, and the scenario direction sign.
func WriteNormalizationParamsCSV(path string, varNames []string, params *NormalizationParams, signs map[string]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"variable", "sign", "mean", "std", "ref_std", "max", "min", "ref_max", "ref_min"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	for _, name := range varNames {
		mean, ok := params.Mean[name]
		if !ok {
			return fmt.Errorf("no normalization parameters recorded for variable %q", name)
		}
		sign, ok := signs[name]
		if !ok {
			return fmt.Errorf("no sign recorded for variable %q", name)
		}
		row := []string{
			name,
			formatFloat(sign),
			formatFloat(mean),
			formatFloat(params.Std[name]),
			formatFloat(params.RefStd[name]),
			formatFloat(params.Max[name]),
			formatFloat(params.Min[name]),
			formatFloat(params.RefMax[name]),
			formatFloat(params.RefMin[name]),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row to %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteFactorScoresCSV exports the historical factor score series.
func WriteFactorScoresCSV(path string, fm *FactorModel) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, 0, fm.NumFactors+1)
	header = append(header, "period")
	for i := 0; i < fm.NumFactors; i++ {
		header = append(header, fmt.Sprintf("PC%d", i+1))
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	rows, _ := fm.Scores.Dims()
	for i := 0; i < rows; i++ {
		row := make([]string, 0, len(header))
		row = append(row, fm.Periods[i])
		for j := 0; j < fm.NumFactors; j++ {
			row = append(row, formatFloat(fm.Scores.At(i, j)))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row to %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteFactorForecastCSV exports the forecasted factor paths and the SARIMA
// order selected per factor.
func WriteFactorForecastCSV(path string, ff *FactorForecast) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, 0, ff.NumFactors+1)
	header = append(header, "period")
	for i := 0; i < ff.NumFactors; i++ {
		header = append(header, fmt.Sprintf("PC%d", i+1))
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}

	orderRow := make([]string, 0, len(header))
	orderRow = append(orderRow, "model")
	for _, o := range ff.Orders {
		orderRow = append(orderRow, o.String())
	}
	if err := w.Write(orderRow); err != nil {
		return fmt.Errorf("failed to write row to %s: %w", path, err)
	}

	rows, _ := ff.Values.Dims()
	for i := 0; i < rows; i++ {
		row := make([]string, 0, len(header))
		row = append(row, ff.Periods[i])
		for j := 0; j < ff.NumFactors; j++ {
			row = append(row, formatFloat(ff.Values.At(i, j)))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row to %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}
