package stats

// ConversionData is one variant's converted / not-converted column pair.
type ConversionData struct {
	Variant        string
	Conversions    int
	NonConversions int
	Total          int
}

// ChiSquare computes the chi-square statistic for a two-column
// (converted / not-converted) contingency table against the
// independence-null expectation. Returns 0 for empty input or zero
// total sample size.
func ChiSquare(data []ConversionData) float64 {
	if len(data) == 0 {
		return 0
	}

	totalConv := 0
	totalNon := 0
	for _, d := range data {
		totalConv += d.Conversions
		totalNon += d.NonConversions
	}
	grand := totalConv + totalNon
	if grand == 0 {
		return 0
	}

	chi := 0.0
	for _, d := range data {
		rowTotal := float64(d.Conversions + d.NonConversions)

		expConv := rowTotal * float64(totalConv) / float64(grand)
		expNon := rowTotal * float64(totalNon) / float64(grand)

		if expConv > 0 {
			diff := float64(d.Conversions) - expConv
			chi += diff * diff / expConv
		}
		if expNon > 0 {
			diff := float64(d.NonConversions) - expNon
			chi += diff * diff / expNon
		}
	}

	return chi
}

// DegreesOfFreedom for a two-column table with n variants.
func DegreesOfFreedom(numVariants int) int {
	if numVariants-1 < 1 {
		return 1
	}
	return numVariants - 1
}
