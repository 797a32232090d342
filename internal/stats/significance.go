// Package stats is the significance engine: pure numerical functions
// that turn per-variant conversion data into a go/no-go decision.
package stats

import "math"

// DefaultThreshold is the p-value cutoff used when the caller does not
// supply one.
const DefaultThreshold = 0.05

// DefaultMinimumSample is returned by MinimumSampleSize for inputs
// outside the meaningful range.
const DefaultMinimumSample = 100

// VariantMetrics holds the per-variant aggregates the engine judges.
type VariantMetrics struct {
	Variant           string  `json:"variant"`
	Visitors          int     `json:"visitors"`
	Conversions       int     `json:"conversions"`
	ConversionRate    float64 `json:"conversionRate"`
	RevenueCents      int64   `json:"revenueCents"`
	RevenuePerVisitor float64 `json:"revenuePerVisitor"`
}

// SignificanceResult is what dashboards consume; the field names are
// part of the external contract.
type SignificanceResult struct {
	ChiSquare         float64 `json:"chiSquare"`
	DegreesOfFreedom  int     `json:"degreesOfFreedom"`
	PValue            float64 `json:"pValue"`
	ConfidenceLevel   float64 `json:"confidenceLevel"`
	IsSignificant     bool    `json:"isSignificant"`
	WinningVariant    *string `json:"winningVariant"`
	MinimumSampleSize int     `json:"minimumSampleSize"`
}

// ConfidenceLevel converts a p-value to a percentage, rounded to two
// decimals.
func ConfidenceLevel(pValue float64) float64 {
	return math.Round((1-pValue)*100*100) / 100
}

// IsSignificant applies the threshold. Pass DefaultThreshold for the
// conventional 0.05 cutoff.
func IsSignificant(pValue, threshold float64) bool {
	return pValue < threshold
}

// WinningVariant returns the variant with the strictly highest
// conversion rate; ties resolve to the first variant in input order.
// Returns nil for empty input. Significance is judged separately.
func WinningVariant(metrics []VariantMetrics) *string {
	if len(metrics) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(metrics); i++ {
		if metrics[i].ConversionRate > metrics[best].ConversionRate {
			best = i
		}
	}

	name := metrics[best].Variant
	return &name
}

// MinimumSampleSize approximates the per-variant sample needed to
// detect an absolute difference of minDetectableEffect from
// baselineRate: ceil(16·p(1−p)/d²) for 80% power, multiplier 21 for
// 90%. Out-of-range inputs return DefaultMinimumSample.
func MinimumSampleSize(baselineRate, minDetectableEffect, power float64) int {
	if baselineRate <= 0 || baselineRate >= 1 || minDetectableEffect <= 0 {
		return DefaultMinimumSample
	}

	multiplier := 16.0
	if power >= 0.9 {
		multiplier = 21.0
	}

	n := multiplier * baselineRate * (1 - baselineRate) / (minDetectableEffect * minDetectableEffect)
	return int(math.Ceil(n))
}

// CalculateSignificance composes the engine into one result. Degenerate
// input (no variants, zero samples) yields a neutral result — chi 0,
// p-value 1, not significant — never an error, so dashboards can render
// "insufficient data" without special-casing.
func CalculateSignificance(metrics []VariantMetrics, threshold float64) SignificanceResult {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	data := make([]ConversionData, len(metrics))
	for i, m := range metrics {
		data[i] = ConversionData{
			Variant:        m.Variant,
			Conversions:    m.Conversions,
			NonConversions: m.Visitors - m.Conversions,
			Total:          m.Visitors,
		}
	}

	chi := ChiSquare(data)
	df := DegreesOfFreedom(len(metrics))
	p := PValue(chi, df)
	significant := IsSignificant(p, threshold)

	// No winner is declared without significance.
	var winner *string
	if significant {
		winner = WinningVariant(metrics)
	}

	baseline := 0.0
	if len(metrics) > 0 {
		baseline = metrics[0].ConversionRate
	}

	return SignificanceResult{
		ChiSquare:         chi,
		DegreesOfFreedom:  df,
		PValue:            p,
		ConfidenceLevel:   ConfidenceLevel(p),
		IsSignificant:     significant,
		WinningVariant:    winner,
		MinimumSampleSize: MinimumSampleSize(baseline, 0.05, 0.8),
	}
}
