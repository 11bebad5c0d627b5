// Project: PCA+ARIMA Macroeconomic Scenario Forecasting
// Pipeline stages: normalization, factor extraction, regression-based factor
// selection with diagnostics, factor forecasting, reconstruction, scenarios.

package main

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Normalize standardizes every variable of the primary panel to zero mean and
// unit variance using the sample standard deviation, and records the scalars
// needed later: mean/std for de-normalization, the reference panel's std for
// scenario band width, and the historical bounds of both windows.
func Normalize(panel, refPanel *Panel) (*Panel, *NormalizationParams, error) {
	rows, cols := panel.Dims()
	if rows == 0 || cols == 0 {
		return nil, nil, fmt.Errorf("%w: primary panel is empty", ErrConfiguration)
	}
	refRows, refCols := refPanel.Dims()
	if refRows == 0 || refCols == 0 {
		return nil, nil, fmt.Errorf("%w: reference panel is empty", ErrConfiguration)
	}

	params := &NormalizationParams{
		Mean:   make(map[string]float64, cols),
		Std:    make(map[string]float64, cols),
		RefStd: make(map[string]float64, cols),
		Max:    make(map[string]float64, cols),
		Min:    make(map[string]float64, cols),
		RefMax: make(map[string]float64, cols),
		RefMin: make(map[string]float64, cols),
	}

	norm := mat.NewDense(rows, cols, nil)
	for j, name := range panel.VarNames {
		col := panel.Column(j)
		mean := stat.Mean(col, nil)
		std := stat.StdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			return nil, nil, fmt.Errorf("%w: variable %q has zero variance, standardization undefined", ErrConfiguration, name)
		}

		refCol, ok := refPanel.ColumnByName(name)
		if !ok {
			return nil, nil, fmt.Errorf("%w: variable %q missing from reference panel", ErrConfiguration, name)
		}
		refStd := stat.StdDev(refCol, nil)
		if refStd == 0 || math.IsNaN(refStd) {
			return nil, nil, fmt.Errorf("%w: variable %q has zero variance over the reference window", ErrConfiguration, name)
		}

		params.Mean[name] = mean
		params.Std[name] = std
		params.RefStd[name] = refStd
		params.Max[name] = floats.Max(col)
		params.Min[name] = floats.Min(col)
		params.RefMax[name] = floats.Max(refCol)
		params.RefMin[name] = floats.Min(refCol)

		for i := 0; i < rows; i++ {
			norm.Set(i, j, (col[i]-mean)/std)
		}
	}

	periods := make([]string, rows)
	copy(periods, panel.Periods)
	names := make([]string, cols)
	copy(names, panel.VarNames)
	return &Panel{Y: norm, Periods: periods, VarNames: names}, params, nil
}

// ExtractFactors runs a principal component decomposition of the normalized
// panel and keeps the smallest number of components whose cumulative
// explained-variance ratio reaches the threshold, capped at min(rows, cols).
// The cap applies when the threshold is never reached.
func ExtractFactors(normalized *Panel, varianceThreshold float64) (*FactorModel, error) {
	rows, cols := normalized.Dims()
	if cols < 2 {
		return nil, fmt.Errorf("%w: decomposition requires at least 2 variables, got %d", ErrDimensionality, cols)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(normalized.Y, nil); !ok {
		return nil, fmt.Errorf("%w: principal component decomposition failed", ErrDimensionality)
	}

	vars := pc.VarsTo(nil)
	total := 0.0
	for _, v := range vars {
		total += v
	}
	if total <= 0 || math.IsNaN(total) {
		return nil, fmt.Errorf("%w: decomposition produced no variance", ErrDimensionality)
	}
	ratios := make([]float64, len(vars))
	for i, v := range vars {
		ratios[i] = v / total
	}

	maxFactors := min(rows, cols)
	if len(ratios) < maxFactors {
		maxFactors = len(ratios)
	}
	k := maxFactors
	cum := 0.0
	for i := 0; i < maxFactors; i++ {
		cum += ratios[i]
		if cum >= varianceThreshold {
			k = i + 1
			break
		}
	}

	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	basis := mat.DenseCopyOf(vecs.Slice(0, cols, 0, k))

	var scores mat.Dense
	scores.Mul(normalized.Y, basis)
	sr, sc := scores.Dims()
	for i := 0; i < sr; i++ {
		for j := 0; j < sc; j++ {
			if math.IsNaN(scores.At(i, j)) {
				return nil, fmt.Errorf("%w: factor scores contain NaN at row %d", ErrDimensionality, i)
			}
		}
	}

	periods := make([]string, rows)
	copy(periods, normalized.Periods)
	return &FactorModel{
		Scores:     &scores,
		Components: basis,
		Explained:  ratios,
		NumFactors: k,
		Periods:    periods,
	}, nil
}

// CumulativeExplained returns the explained-variance ratio captured by the
// retained factors.
func (fm *FactorModel) CumulativeExplained() float64 {
	cum := 0.0
	for i := 0; i < fm.NumFactors && i < len(fm.Explained); i++ {
		cum += fm.Explained[i]
	}
	return cum
}

// olsFit is one ordinary least squares fit with the intercept first.
type olsFit struct {
	coeffs  []float64
	pvalues []float64
	r2      float64
	resid   []float64
	fitted  []float64
	df      int
}

// olsSolve estimates beta for X*beta ~ y through the normal equations. A
// design matrix whose cross product cannot be inverted is degenerate and
// reported as a regression error.
func olsSolve(X *mat.Dense, y []float64) (beta, resid []float64, xtxInv *mat.Dense, err error) {
	rows, cols := X.Dims()

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: design matrix is rank deficient: %v", ErrRegression, err)
	}

	yv := mat.NewVecDense(rows, append([]float64(nil), y...))
	var xty mat.VecDense
	xty.MulVec(X.T(), yv)
	var b mat.VecDense
	b.MulVec(&inv, &xty)

	beta = make([]float64, cols)
	for i := range beta {
		beta[i] = b.AtVec(i)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &b)
	resid = make([]float64, rows)
	for i := range resid {
		resid[i] = y[i] - fitted.AtVec(i)
	}
	return beta, resid, &inv, nil
}

// designMatrix builds [1 | regressors...] column by column.
func designMatrix(n int, regressors [][]float64) *mat.Dense {
	X := mat.NewDense(n, len(regressors)+1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
	}
	for j, reg := range regressors {
		X.SetCol(j+1, reg)
	}
	return X
}

// fitOLS regresses y on the given regressors plus an intercept and computes
// coefficient p-values (two-sided t-tests) and R².
func fitOLS(y []float64, regressors [][]float64) (*olsFit, error) {
	n := len(y)
	k := len(regressors) + 1
	X := designMatrix(n, regressors)

	beta, resid, xtxInv, err := olsSolve(X, y)
	if err != nil {
		return nil, err
	}

	ybar := stat.Mean(y, nil)
	tss, rss := 0.0, 0.0
	for i := 0; i < n; i++ {
		d := y[i] - ybar
		tss += d * d
		rss += resid[i] * resid[i]
	}
	r2 := 0.0
	if tss > 0 {
		r2 = 1 - rss/tss
	}

	df := n - k
	sigma2 := 0.0
	if df > 0 {
		sigma2 = rss / float64(df)
	}

	pvalues := make([]float64, k)
	for j := range beta {
		switch {
		case df <= 0:
			pvalues[j] = math.NaN()
		default:
			se := math.Sqrt(sigma2 * xtxInv.At(j, j))
			if se == 0 {
				// A perfect fit leaves no sampling uncertainty.
				if beta[j] == 0 {
					pvalues[j] = 1
				} else {
					pvalues[j] = 0
				}
				continue
			}
			t := beta[j] / se
			tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
			pvalues[j] = 2 * (1 - tDist.CDF(math.Abs(t)))
		}
	}

	fitted := make([]float64, n)
	for i := range fitted {
		fitted[i] = y[i] - resid[i]
	}
	return &olsFit{coeffs: beta, pvalues: pvalues, r2: r2, resid: resid, fitted: fitted, df: df}, nil
}

// passesScreen applies the univariate screening rule: strict inequalities on
// both thresholds, boundary values excluded.
func passesScreen(pValue, r2 float64, cfg Config) bool {
	return !math.IsNaN(pValue) && pValue < cfg.PValueThreshold && r2 > cfg.R2Threshold
}

// SelectFactors screens every (variable, factor) pair with a univariate
// regression, then fits one multivariate regression per variable on its
// retained factors, recording the diagnostic statistics. Variables retaining
// no factor receive no record and are excluded from reconstruction.
func SelectFactors(normalized *Panel, factors *FactorModel, cfg Config) ([]RegressionRecord, []ScreeningResult, error) {
	_, cols := normalized.Dims()

	factorSeries := make([][]float64, factors.NumFactors)
	for i := range factorSeries {
		factorSeries[i] = factors.FactorSeries(i)
	}

	screening := make([]ScreeningResult, 0, cols*factors.NumFactors)
	retained := make([][]int, cols)
	for j := 0; j < cols; j++ {
		y := normalized.Column(j)
		name := normalized.VarNames[j]
		for i := 0; i < factors.NumFactors; i++ {
			if isDegenerate(factorSeries[i]) {
				continue
			}
			fit, err := fitOLS(y, [][]float64{factorSeries[i]})
			if err != nil {
				return nil, nil, err
			}
			res := ScreeningResult{
				Variable: name,
				Factor:   i,
				R2:       fit.r2,
				PValue:   fit.pvalues[1],
			}
			res.Retained = passesScreen(res.PValue, res.R2, cfg)
			screening = append(screening, res)
			if res.Retained {
				retained[j] = append(retained[j], i)
			}
		}
	}

	var records []RegressionRecord
	for j := 0; j < cols; j++ {
		idxs := retained[j]
		if len(idxs) == 0 {
			continue
		}
		y := normalized.Column(j)
		regs := make([][]float64, len(idxs))
		for i, f := range idxs {
			regs[i] = factorSeries[f]
		}

		fit, err := fitOLS(y, regs)
		if err != nil {
			return nil, nil, err
		}

		rec := RegressionRecord{
			Variable:     normalized.VarNames[j],
			Factors:      append([]int(nil), idxs...),
			Intercept:    fit.coeffs[0],
			Coefficients: append([]float64(nil), fit.coeffs[1:]...),
			PValues:      append([]float64(nil), fit.pvalues...),
			R2:           fit.r2,
			ResetTest:    resetTest(y, regs, fit),
			DurbinWatson: durbinWatson(fit.resid),
			JarqueBera:   jarqueBera(fit.resid),
			BreuschPagan: breuschPagan(fit.resid, regs),
			VIF:          varianceInflation(len(y), regs),
		}
		records = append(records, rec)
	}
	return records, screening, nil
}

// resetTest computes the Ramsey RESET functional-form test: the restricted
// fit is compared against one augmented with the squared fitted values, and
// the improvement is scored with an F-test.
func resetTest(y []float64, regs [][]float64, restricted *olsFit) float64 {
	n := len(y)
	sq := make([]float64, n)
	for i, f := range restricted.fitted {
		sq[i] = f * f
	}
	aug := make([][]float64, 0, len(regs)+1)
	aug = append(aug, regs...)
	aug = append(aug, sq)

	unres, err := fitOLS(y, aug)
	if err != nil {
		return math.NaN()
	}

	rssR, rssU := 0.0, 0.0
	for i := 0; i < n; i++ {
		rssR += restricted.resid[i] * restricted.resid[i]
		rssU += unres.resid[i] * unres.resid[i]
	}
	dfU := float64(unres.df)
	num := rssR - rssU
	if num < 0 {
		num = 0
	}
	if dfU <= 0 || rssU <= 0 || num == 0 {
		return 1
	}
	f := num / (rssU / dfU)
	fDist := distuv.F{D1: 1, D2: dfU}
	p := 1 - fDist.CDF(f)
	if p < 0 {
		p = 0
	}
	return p
}

// durbinWatson computes the first-order serial correlation statistic of the
// residuals. Values near 2 indicate no autocorrelation.
func durbinWatson(resid []float64) float64 {
	sumSq := 0.0
	for _, e := range resid {
		sumSq += e * e
	}
	if sumSq == 0 {
		return 2
	}
	num := 0.0
	for t := 1; t < len(resid); t++ {
		d := resid[t] - resid[t-1]
		num += d * d
	}
	return num / sumSq
}

// jarqueBera returns the p-value of the Jarque-Bera residual normality test.
func jarqueBera(resid []float64) float64 {
	n := float64(len(resid))
	if n < 3 {
		return math.NaN()
	}
	mean := stat.Mean(resid, nil)
	m2, m3, m4 := 0.0, 0.0, 0.0
	for _, e := range resid {
		d := e - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m3 /= n
	m4 /= n
	if m2 == 0 {
		return 1
	}
	skew := m3 / math.Pow(m2, 1.5)
	kurt := m4 / (m2 * m2)
	jb := n / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)
	chi := distuv.ChiSquared{K: 2}
	p := 1 - chi.CDF(jb)
	if p < 0 {
		p = 0
	}
	return p
}

// breuschPagan returns the p-value of the Breusch-Pagan heteroskedasticity
// LM test: squared residuals regressed on the original regressors.
func breuschPagan(resid []float64, regs [][]float64) float64 {
	n := len(resid)
	sq := make([]float64, n)
	for i, e := range resid {
		sq[i] = e * e
	}
	aux, err := fitOLS(sq, regs)
	if err != nil {
		return math.NaN()
	}
	lm := float64(n) * aux.r2
	if lm < 0 {
		lm = 0
	}
	chi := distuv.ChiSquared{K: float64(len(regs))}
	p := 1 - chi.CDF(lm)
	if p < 0 {
		p = 0
	}
	return p
}

// varianceInflation computes the VIF of every regressor of the design matrix
// including the intercept column, mirroring the layout of the regression
// record (intercept first). A column perfectly explained by the others has
// infinite VIF.
func varianceInflation(n int, regs [][]float64) []float64 {
	X := designMatrix(n, regs)
	_, cols := X.Dims()
	out := make([]float64, cols)
	for j := 0; j < cols; j++ {
		yj := make([]float64, n)
		mat.Col(yj, j, X)

		others := mat.NewDense(n, cols-1, nil)
		oc := 0
		for c := 0; c < cols; c++ {
			if c == j {
				continue
			}
			col := make([]float64, n)
			mat.Col(col, c, X)
			others.SetCol(oc, col)
			oc++
		}

		_, resid, _, err := olsSolve(others, yj)
		if err != nil {
			out[j] = math.Inf(1)
			continue
		}
		ybar := stat.Mean(yj, nil)
		tss, rss := 0.0, 0.0
		for i := 0; i < n; i++ {
			d := yj[i] - ybar
			tss += d * d
			rss += resid[i] * resid[i]
		}
		if tss <= 0 {
			// Constant column: fall back to the uncentered total.
			for i := 0; i < n; i++ {
				tss += yj[i] * yj[i]
			}
		}
		if tss <= 0 {
			out[j] = math.Inf(1)
			continue
		}
		r2 := 1 - rss/tss
		if 1-r2 <= 0 {
			out[j] = math.Inf(1)
			continue
		}
		out[j] = 1 / (1 - r2)
	}
	return out
}

// ForecastFactors fits an automatic seasonal ARIMA model to every factor
// series and produces point forecasts over the configured horizon. Factors
// are fitted independently on a bounded worker pool; the result does not
// depend on scheduling.
func ForecastFactors(factors *FactorModel, cfg Config) (*FactorForecast, error) {
	k := factors.NumFactors
	horizon := cfg.PredictPeriod

	type fitResult struct {
		idx      int
		forecast []float64
		order    ArimaOrder
		err      error
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > k {
		workers = k
	}

	jobs := make(chan int)
	resultsCh := make(chan fitResult, k)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				series := factors.FactorSeries(i)
				model, err := autoArima(series, cfg)
				if err != nil {
					resultsCh <- fitResult{idx: i, err: fmt.Errorf("factor %d: %w", i, err)}
					continue
				}
				resultsCh <- fitResult{idx: i, forecast: model.predict(horizon), order: model.order}
			}
		}()
	}
	go func() {
		for i := 0; i < k; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	values := mat.NewDense(horizon, k, nil)
	orders := make([]ArimaOrder, k)
	errIdx := -1
	var firstErr error
	for i := 0; i < k; i++ {
		res := <-resultsCh
		if res.err != nil {
			// Keep the lowest factor index so the reported error is
			// deterministic regardless of scheduling.
			if errIdx == -1 || res.idx < errIdx {
				errIdx = res.idx
				firstErr = res.err
			}
			continue
		}
		orders[res.idx] = res.order
		for h := 0; h < horizon; h++ {
			values.Set(h, res.idx, res.forecast[h])
		}
	}
	wg.Wait()
	close(resultsCh)
	if firstErr != nil {
		return nil, firstErr
	}

	for h := 0; h < horizon; h++ {
		for j := 0; j < k; j++ {
			if v := values.At(h, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: factor %d produced a non-finite forecast at step %d", ErrForecast, j, h+1)
			}
		}
	}

	return &FactorForecast{
		Periods:    extendPeriods(factors.Periods, horizon),
		Values:     values,
		NumFactors: k,
		Orders:     orders,
	}, nil
}

// extendPeriods continues the panel's period labels for n future rows. Date
// labels advance by the panel's observed month spacing; anything else falls
// back to relative labels.
func extendPeriods(periods []string, n int) []string {
	out := make([]string, n)
	layouts := []string{"2006-01-02", "2006/01/02", "2006-01"}
	if len(periods) >= 2 {
		for _, layout := range layouts {
			last, errLast := time.Parse(layout, periods[len(periods)-1])
			prev, errPrev := time.Parse(layout, periods[len(periods)-2])
			if errLast != nil || errPrev != nil {
				continue
			}
			months := (last.Year()-prev.Year())*12 + int(last.Month()) - int(prev.Month())
			if months <= 0 {
				continue
			}
			cur := last
			for i := range out {
				cur = addMonthsEndAware(cur, months)
				out[i] = cur.Format(layout)
			}
			return out
		}
	}
	for i := range out {
		out[i] = fmt.Sprintf("T+%d", i+1)
	}
	return out
}

// addMonthsEndAware advances by whole months, keeping end-of-month dates on
// the end of the month (quarter-end panels stay on quarter ends).
func addMonthsEndAware(t time.Time, months int) time.Time {
	atEnd := t.Day() == daysInMonth(t.Year(), t.Month())
	anchor := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	day := t.Day()
	if limit := daysInMonth(anchor.Year(), anchor.Month()); atEnd || day > limit {
		day = limit
	}
	return time.Date(anchor.Year(), anchor.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Reconstruct maps the factor forecasts back onto the original variables:
// intercept plus the record's coefficients applied to the forecasted factors,
// then de-normalization with the primary-window mean and std. The join is
// keyed by factor index and fails closed; only the intercept term is the
// implicit constant 1.
func Reconstruct(forecast *FactorForecast, records []RegressionRecord, params *NormalizationParams) (*ForecastTable, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no variable retained any factor, nothing to reconstruct", ErrReconstruction)
	}
	horizon := len(forecast.Periods)

	names := make([]string, len(records))
	values := mat.NewDense(horizon, len(records), nil)
	for j, rec := range records {
		names[j] = rec.Variable
		mean, okMean := params.Mean[rec.Variable]
		std, okStd := params.Std[rec.Variable]
		if !okMean || !okStd {
			return nil, fmt.Errorf("%w: no normalization parameters for variable %q", ErrReconstruction, rec.Variable)
		}
		for h := 0; h < horizon; h++ {
			v := rec.Intercept
			for _, f := range rec.Factors {
				c, ok := rec.coeff(f)
				if !ok {
					return nil, fmt.Errorf("%w: variable %q has no coefficient for factor %d",
						ErrReconstruction, rec.Variable, f)
				}
				fv, ok := forecast.At(h, f)
				if !ok {
					return nil, fmt.Errorf("%w: variable %q references factor %d absent from the forecast table",
						ErrReconstruction, rec.Variable, f)
				}
				v += c * fv
			}
			values.Set(h, j, v*std+mean)
		}
	}

	periods := make([]string, horizon)
	copy(periods, forecast.Periods)
	return &ForecastTable{Periods: periods, VarNames: names, Values: values}, nil
}

// GenerateScenarios derives the four scenario bands from the base forecast:
// base ± multiplier × reference-window std × sign. The offset is computed
// once per variable so the optimistic and pessimistic shifts are exactly
// symmetric. A variable without a sign entry is an error, never defaulted.
func GenerateScenarios(base *ForecastTable, params *NormalizationParams, signs map[string]float64, cfg Config) (*ScenarioSet, error) {
	rows, cols := base.Values.Dims()
	blank := func() *ForecastTable {
		periods := make([]string, rows)
		copy(periods, base.Periods)
		names := make([]string, cols)
		copy(names, base.VarNames)
		return &ForecastTable{Periods: periods, VarNames: names, Values: mat.NewDense(rows, cols, nil)}
	}

	set := &ScenarioSet{
		Base:               base,
		Optimistic:         blank(),
		Pessimistic:        blank(),
		ExtremeOptimistic:  blank(),
		ExtremePessimistic: blank(),
	}

	for j, name := range base.VarNames {
		sign, ok := signs[name]
		if !ok {
			return nil, fmt.Errorf("%w: no sign assigned for variable %q in the base forecast", ErrConfiguration, name)
		}
		refStd, ok := params.RefStd[name]
		if !ok {
			return nil, fmt.Errorf("%w: no reference-window std for variable %q", ErrConfiguration, name)
		}

		offNormal := cfg.NNormal * refStd * sign
		offExtreme := cfg.NExtreme * refStd * sign
		for h := 0; h < rows; h++ {
			b := base.Values.At(h, j)
			set.Optimistic.Values.Set(h, j, b+offNormal)
			set.Pessimistic.Values.Set(h, j, b-offNormal)
			set.ExtremeOptimistic.Values.Set(h, j, b+offExtreme)
			set.ExtremePessimistic.Values.Set(h, j, b-offExtreme)
		}
	}
	return set, nil
}

// RunPipeline executes the full batch pass: normalize, extract, select,
// forecast, reconstruct, band. Stages run strictly in sequence; the first
// failure aborts the run.
func RunPipeline(panel, refPanel *Panel, signs map[string]float64, cfg Config, log zerolog.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	normalized, params, err := Normalize(panel, refPanel)
	if err != nil {
		return nil, err
	}
	rows, cols := normalized.Dims()
	log.Info().Int("periods", rows).Int("variables", cols).Msg("panel normalized")

	factors, err := ExtractFactors(normalized, cfg.VarianceThreshold)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("factors", factors.NumFactors).
		Float64("cumulative_variance", factors.CumulativeExplained()).
		Msg("principal factors extracted")

	records, screening, err := SelectFactors(normalized, factors, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("pairs_screened", len(screening)).
		Int("variables_modeled", len(records)).
		Msg("factor selection complete")

	forecast, err := ForecastFactors(factors, cfg)
	if err != nil {
		return nil, err
	}
	for i, order := range forecast.Orders {
		log.Debug().Int("factor", i).Stringer("order", order).Msg("SARIMA model selected")
	}
	log.Info().Int("horizon", cfg.PredictPeriod).Msg("factor forecasts produced")

	baseTable, err := Reconstruct(forecast, records, params)
	if err != nil {
		return nil, err
	}

	scenarios, err := GenerateScenarios(baseTable, params, signs, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Int("scenarios", 5).Msg("scenario tables ready")

	return &Result{
		Params:         params,
		Factors:        factors,
		Screening:      screening,
		Records:        records,
		FactorForecast: forecast,
		Scenarios:      scenarios,
	}, nil
}
