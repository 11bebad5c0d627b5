// Project: PCA+ARIMA Macroeconomic Scenario Forecasting
// Seasonal ARIMA engine used to forecast the principal factors: automatic
// differencing via KPSS, conditional-sum-of-squares fitting, BIC order search.

package main

import (
	"fmt"
	"math"
)

// ArimaOrder is a full SARIMA specification (p,d,q)(P,D,Q)m.
type ArimaOrder struct {
	P, D, Q    int
	SP, SD, SQ int
	M          int
}

func (o ArimaOrder) String() string {
	return fmt.Sprintf("(%d,%d,%d)(%d,%d,%d)[%d]", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.M)
}

func (o ArimaOrder) numParams() int {
	return o.P + o.Q + o.SP + o.SQ + 1 // plus intercept
}

// arimaModel is one fitted SARIMA model on a single series.
type arimaModel struct {
	order     ArimaOrder
	arCoeffs  []float64
	maCoeffs  []float64
	sarCoeffs []float64
	smaCoeffs []float64
	intercept float64
	variance  float64
	logLik    float64
	bic       float64
	residuals []float64
	original  []float64
	diffed    []float64
}

// kpss critical value at the 5% level for the level-stationarity test.
const kpssCritical5 = 0.463

// diff returns the first difference of xs.
func diff(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = xs[i] - xs[i-1]
	}
	return out
}

// seasonalDiff returns the lag-m difference of xs.
func seasonalDiff(xs []float64, m int) []float64 {
	if m < 1 || len(xs) <= m {
		return nil
	}
	out := make([]float64, len(xs)-m)
	for i := m; i < len(xs); i++ {
		out[i-m] = xs[i] - xs[i-m]
	}
	return out
}

// acf computes the autocorrelation function for lags 0..maxLag.
func acf(xs []float64, maxLag int) []float64 {
	n := len(xs)
	if maxLag >= n {
		maxLag = n - 1
	}
	if maxLag < 0 {
		return nil
	}
	mean := 0.0
	for _, v := range xs {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range xs {
		d := v - mean
		variance += d * d
	}
	if variance == 0 {
		return nil
	}

	out := make([]float64, maxLag+1)
	for k := 0; k <= maxLag; k++ {
		sum := 0.0
		for i := k; i < n; i++ {
			sum += (xs[i] - mean) * (xs[i-k] - mean)
		}
		out[k] = sum / variance
	}
	return out
}

// kpssStatistic computes the KPSS level-stationarity statistic with a
// Bartlett-window long-run variance estimate. Large values reject
// stationarity.
func kpssStatistic(xs []float64) float64 {
	n := len(xs)
	if n < 3 {
		return 0
	}
	mean := 0.0
	for _, v := range xs {
		mean += v
	}
	mean /= float64(n)

	resid := make([]float64, n)
	partial := make([]float64, n)
	cum := 0.0
	s2 := 0.0
	for i, v := range xs {
		resid[i] = v - mean
		cum += resid[i]
		partial[i] = cum
		s2 += resid[i] * resid[i]
	}

	// Newey-West bandwidth, the short default.
	lags := int(math.Floor(4 * math.Pow(float64(n)/100, 0.25)))
	lrv := s2 / float64(n)
	for s := 1; s <= lags; s++ {
		w := 1 - float64(s)/float64(lags+1)
		gamma := 0.0
		for t := s; t < n; t++ {
			gamma += resid[t] * resid[t-s]
		}
		lrv += 2 * w * gamma / float64(n)
	}
	if lrv <= 0 {
		return 0
	}

	num := 0.0
	for _, p := range partial {
		num += p * p
	}
	return num / (float64(n) * float64(n) * lrv)
}

// kpssNDiffs returns the number of first differences needed to pass the KPSS
// test, capped at maxD.
func kpssNDiffs(xs []float64, maxD int) int {
	d := 0
	cur := xs
	for d < maxD && len(cur) > 2 && kpssStatistic(cur) > kpssCritical5 {
		cur = diff(cur)
		d++
	}
	return d
}

// seasonalNDiffs decides the seasonal differencing order from the strength of
// the autocorrelation at the seasonal lag. At most one seasonal difference.
func seasonalNDiffs(xs []float64, m int) int {
	if m < 2 || len(xs) < 2*m+2 {
		return 0
	}
	a := acf(xs, m)
	if a == nil {
		return 0
	}
	if a[m] > 0.64 {
		return 1
	}
	return 0
}

// yuleWalker solves the Yule-Walker equations for initial AR estimates using
// Levinson-Durbin recursion.
func yuleWalker(a []float64, order int) []float64 {
	if order <= 0 || len(a) <= order {
		return nil
	}
	phi := make([]float64, order)
	phi[0] = a[1]
	if order == 1 {
		return phi
	}
	v := 1 - phi[0]*phi[0]
	for i := 1; i < order; i++ {
		lambda := a[i+1]
		for j := 0; j < i; j++ {
			lambda -= phi[j] * a[i-j]
		}
		if v == 0 {
			break
		}
		lambda /= v
		next := make([]float64, i+1)
		for j := 0; j < i; j++ {
			next[j] = phi[j] - lambda*phi[i-1-j]
		}
		next[i] = lambda
		copy(phi, next)
		v *= 1 - lambda*lambda
		if v <= 0 {
			break
		}
	}
	return phi
}

func clampCoeff(v float64) float64 {
	return math.Max(-0.99, math.Min(0.99, v))
}

// fitArima fits a SARIMA model of the given order by conditional sum of
// squares with momentum gradient descent, following the differencing order
// d first, D second (the operators commute).
func fitArima(series []float64, order ArimaOrder) (*arimaModel, error) {
	diffed := series
	for i := 0; i < order.D; i++ {
		diffed = diff(diffed)
		if len(diffed) == 0 {
			return nil, fmt.Errorf("differencing exhausted the series")
		}
	}
	for i := 0; i < order.SD; i++ {
		diffed = seasonalDiff(diffed, order.M)
		if len(diffed) == 0 {
			return nil, fmt.Errorf("seasonal differencing exhausted the series")
		}
	}

	n := len(diffed)
	if n < order.numParams()+2 {
		return nil, fmt.Errorf("only %d observations after differencing for %d parameters", n, order.numParams())
	}

	m := &arimaModel{
		order:     order,
		arCoeffs:  make([]float64, order.P),
		maCoeffs:  make([]float64, order.Q),
		sarCoeffs: make([]float64, order.SP),
		smaCoeffs: make([]float64, order.SQ),
		original:  append([]float64(nil), series...),
		diffed:    diffed,
	}

	mean := 0.0
	for _, v := range diffed {
		mean += v
	}
	m.intercept = mean / float64(n)

	// AR starting values from Yule-Walker, MA terms start small.
	if order.P > 0 {
		if a := acf(diffed, order.P); a != nil {
			if phi := yuleWalker(a, order.P); phi != nil {
				for i := range phi {
					m.arCoeffs[i] = clampCoeff(phi[i])
				}
			}
		}
	}
	if order.SP > 0 {
		if a := acf(diffed, order.SP*order.M); a != nil {
			for i := 0; i < order.SP; i++ {
				if idx := (i + 1) * order.M; idx < len(a) {
					m.sarCoeffs[i] = clampCoeff(a[idx] * 0.5)
				}
			}
		}
	}
	for i := range m.maCoeffs {
		m.maCoeffs[i] = 0.1
	}
	for i := range m.smaCoeffs {
		m.smaCoeffs[i] = 0.1
	}

	if err := m.optimizeCSS(); err != nil {
		return nil, err
	}
	m.computeBIC()
	return m, nil
}

// predictOne evaluates the one-step SARIMA recursion at position t over the
// values and residual history supplied.
func (m *arimaModel) predictOne(t int, values, residuals []float64, residLimit int) float64 {
	pred := m.intercept
	for i := 0; i < m.order.P && t-i-1 >= 0; i++ {
		pred += m.arCoeffs[i] * (values[t-i-1] - m.intercept)
	}
	for i := 0; i < m.order.SP; i++ {
		lag := (i + 1) * m.order.M
		if t-lag >= 0 {
			pred += m.sarCoeffs[i] * (values[t-lag] - m.intercept)
		}
	}
	for i := 0; i < m.order.Q && t-i-1 >= 0; i++ {
		if t-i-1 < residLimit {
			pred += m.maCoeffs[i] * residuals[t-i-1]
		}
	}
	for i := 0; i < m.order.SQ; i++ {
		lag := (i + 1) * m.order.M
		if t-lag >= 0 && t-lag < residLimit {
			pred += m.smaCoeffs[i] * residuals[t-lag]
		}
	}
	return pred
}

// optimizeCSS runs the momentum gradient descent on the conditional sum of
// squares, keeping the best parameter set seen.
func (m *arimaModel) optimizeCSS() error {
	y := m.diffed
	n := len(y)
	p, q := m.order.P, m.order.Q
	sp, sq := m.order.SP, m.order.SQ
	period := m.order.M

	const (
		maxIter   = 200
		tolerance = 1e-8
		momentum  = 0.9
		decay     = 0.99
	)
	learningRate := 0.005

	arMom := make([]float64, p)
	maMom := make([]float64, q)
	sarMom := make([]float64, sp)
	smaMom := make([]float64, sq)

	startIdx := max(max(p, q), max(sp*period, sq*period))
	if startIdx >= n-2 {
		startIdx = 0
	}

	bestSSE := math.Inf(1)
	bestAR := append([]float64(nil), m.arCoeffs...)
	bestMA := append([]float64(nil), m.maCoeffs...)
	bestSAR := append([]float64(nil), m.sarCoeffs...)
	bestSMA := append([]float64(nil), m.smaCoeffs...)
	noImprove := 0

	for iter := 0; iter < maxIter; iter++ {
		residuals := make([]float64, n)
		sse := 0.0
		for t := startIdx; t < n; t++ {
			residuals[t] = y[t] - m.predictOne(t, y, residuals, n)
			sse += residuals[t] * residuals[t]
		}
		if math.IsNaN(sse) || math.IsInf(sse, 0) {
			return fmt.Errorf("sum of squares diverged at iteration %d", iter)
		}

		if sse < bestSSE {
			if iter > 0 && bestSSE-sse < tolerance {
				break
			}
			bestSSE = sse
			copy(bestAR, m.arCoeffs)
			copy(bestMA, m.maCoeffs)
			copy(bestSAR, m.sarCoeffs)
			copy(bestSMA, m.smaCoeffs)
			noImprove = 0
		} else {
			noImprove++
		}
		if noImprove > 20 {
			break
		}

		arGrad := make([]float64, p)
		maGrad := make([]float64, q)
		sarGrad := make([]float64, sp)
		smaGrad := make([]float64, sq)
		for t := startIdx; t < n; t++ {
			for i := 0; i < p && t-i-1 >= 0; i++ {
				arGrad[i] -= 2 * residuals[t] * (y[t-i-1] - m.intercept)
			}
			for i := 0; i < sp; i++ {
				if lag := (i + 1) * period; t-lag >= 0 {
					sarGrad[i] -= 2 * residuals[t] * (y[t-lag] - m.intercept)
				}
			}
			for i := 0; i < q && t-i-1 >= 0; i++ {
				maGrad[i] -= 2 * residuals[t] * residuals[t-i-1]
			}
			for i := 0; i < sq; i++ {
				if lag := (i + 1) * period; t-lag >= 0 {
					smaGrad[i] -= 2 * residuals[t] * residuals[t-lag]
				}
			}
		}

		for i := 0; i < p; i++ {
			arMom[i] = momentum*arMom[i] + learningRate*arGrad[i]/float64(n)
			m.arCoeffs[i] = clampCoeff(m.arCoeffs[i] - arMom[i])
		}
		for i := 0; i < sp; i++ {
			sarMom[i] = momentum*sarMom[i] + learningRate*sarGrad[i]/float64(n)
			m.sarCoeffs[i] = clampCoeff(m.sarCoeffs[i] - sarMom[i])
		}
		for i := 0; i < q; i++ {
			maMom[i] = momentum*maMom[i] + learningRate*maGrad[i]/float64(n)
			m.maCoeffs[i] = clampCoeff(m.maCoeffs[i] - maMom[i])
		}
		for i := 0; i < sq; i++ {
			smaMom[i] = momentum*smaMom[i] + learningRate*smaGrad[i]/float64(n)
			m.smaCoeffs[i] = clampCoeff(m.smaCoeffs[i] - smaMom[i])
		}
		learningRate *= decay
	}

	copy(m.arCoeffs, bestAR)
	copy(m.maCoeffs, bestMA)
	copy(m.sarCoeffs, bestSAR)
	copy(m.smaCoeffs, bestSMA)

	m.residuals = make([]float64, n)
	for t := 0; t < n; t++ {
		m.residuals[t] = y[t] - m.predictOne(t, y, m.residuals, n)
	}

	sse := 0.0
	count := 0
	for t := startIdx; t < n; t++ {
		sse += m.residuals[t] * m.residuals[t]
		count++
	}
	if count > m.order.numParams() {
		m.variance = sse / float64(count-m.order.numParams())
	} else if count > 0 {
		m.variance = sse / float64(count)
	}
	if math.IsNaN(m.variance) || math.IsInf(m.variance, 0) {
		return fmt.Errorf("residual variance diverged")
	}
	return nil
}

// computeBIC fills the Gaussian log-likelihood and BIC of the fit.
func (m *arimaModel) computeBIC() {
	n := len(m.residuals)
	k := m.order.numParams()
	sse := 0.0
	for _, r := range m.residuals {
		sse += r * r
	}
	if m.variance > 0 {
		m.logLik = -float64(n)/2*math.Log(2*math.Pi) - float64(n)/2*math.Log(m.variance) - sse/(2*m.variance)
	} else {
		m.logLik = math.Inf(-1)
	}
	m.bic = -2*m.logLik + float64(k)*math.Log(float64(n))
}

// predict produces steps point forecasts on the original scale.
func (m *arimaModel) predict(steps int) []float64 {
	y := m.diffed
	n := len(y)

	extY := make([]float64, n+steps)
	copy(extY, y)
	extResid := make([]float64, n+steps)
	copy(extResid, m.residuals)

	for h := 0; h < steps; h++ {
		t := n + h
		extY[t] = m.predictOne(t, extY, extResid, n)
		extResid[t] = 0
	}

	forecasts := make([]float64, steps)
	copy(forecasts, extY[n:])
	return m.integrate(forecasts)
}

// integrate undoes the differencing applied during the fit. Seasonal
// differences are undone first against the d-differenced history, then each
// non-seasonal level is cumulated from its own last observation.
func (m *arimaModel) integrate(forecasts []float64) []float64 {
	d, sd, period := m.order.D, m.order.SD, m.order.M
	result := append([]float64(nil), forecasts...)

	// Levels of non-seasonal differencing of the original history.
	dLevels := make([][]float64, d+1)
	dLevels[0] = m.original
	for i := 0; i < d; i++ {
		dLevels[i+1] = diff(dLevels[i])
	}

	if sd > 0 && period > 0 {
		// Levels of seasonal differencing applied on top of the deepest
		// non-seasonal level.
		sLevels := make([][]float64, sd+1)
		sLevels[0] = dLevels[d]
		for i := 0; i < sd; i++ {
			sLevels[i+1] = seasonalDiff(sLevels[i], period)
		}
		for i := sd - 1; i >= 0; i-- {
			prev := sLevels[i]
			np := len(prev)
			for j := range result {
				if j < period {
					result[j] += prev[np-period+j]
				} else {
					result[j] += result[j-period]
				}
			}
		}
	}

	for i := d - 1; i >= 0; i-- {
		prev := dLevels[i]
		last := prev[len(prev)-1]
		for j := range result {
			if j == 0 {
				result[j] += last
			} else {
				result[j] += result[j-1]
			}
		}
	}
	return result
}

// minHistory is the shortest series the automatic fit accepts for a given
// seasonal period.
func minHistory(seasonalPeriod int) int {
	n := 2 * seasonalPeriod
	if n < 8 {
		n = 8
	}
	return n
}

// autoArima selects a SARIMA model for one series: seasonal differencing from
// the seasonal autocorrelation, non-seasonal differencing by repeated KPSS
// tests, then an exhaustive bounded order search ranked by BIC.
func autoArima(series []float64, cfg Config) (*arimaModel, error) {
	n := len(series)
	m := cfg.SeasonalPeriod
	if n < minHistory(m) {
		return nil, fmt.Errorf("%w: series has %d observations, need at least %d for seasonal period %d",
			ErrForecast, n, minHistory(m), m)
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: series contains non-finite values", ErrForecast)
		}
	}

	sd := seasonalNDiffs(series, m)
	deseasoned := series
	for i := 0; i < sd; i++ {
		deseasoned = seasonalDiff(deseasoned, m)
	}
	d := kpssNDiffs(deseasoned, cfg.MaxD)

	maxSP, maxSQ := cfg.MaxSeasonalP, cfg.MaxSeasonalQ
	if m < 2 {
		maxSP, maxSQ = 0, 0
		sd = 0
	}

	var best, fallback *arimaModel
	for p := 0; p <= cfg.MaxP; p++ {
		for q := 0; q <= cfg.MaxQ; q++ {
			for sp := 0; sp <= maxSP; sp++ {
				for sq := 0; sq <= maxSQ; sq++ {
					order := ArimaOrder{P: p, D: d, Q: q, SP: sp, SD: sd, SQ: sq, M: m}
					fit, err := fitArima(series, order)
					if err != nil {
						continue
					}
					if math.IsInf(fit.bic, 0) || math.IsNaN(fit.bic) {
						// A perfect fit has zero residual variance and an
						// undefined likelihood; keep the simplest such fit
						// around in case nothing scores a finite BIC.
						if fallback == nil && fit.variance >= 0 {
							fallback = fit
						}
						continue
					}
					if best == nil || fit.bic < best.bic {
						best = fit
					}
				}
			}
		}
	}
	if best == nil {
		best = fallback
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no SARIMA candidate converged within order bounds (max p=%d q=%d)",
			ErrForecast, cfg.MaxP, cfg.MaxQ)
	}
	return best, nil
}
