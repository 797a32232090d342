package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// csvHeader is depended on exactly by downstream dashboards.
var csvHeader = []string{
	"Variant", "Visitors", "Conversions", "Conversion Rate", "Revenue (cents)", "Revenue Per Visitor",
}

// WriteCSV renders the report: one row per variant, a TOTAL row, and a
// significance summary block.
func (m *ExperimentMetrics) WriteCSV(out io.Writer) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, v := range m.Variants {
		row := []string{
			v.Variant,
			strconv.Itoa(v.Visitors),
			strconv.Itoa(v.Conversions),
			fmt.Sprintf("%.2f%%", v.ConversionRate*100),
			strconv.FormatInt(v.RevenueCents, 10),
			fmt.Sprintf("%.2f", v.RevenuePerVisitor),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	totalRate := 0.0
	totalRevenuePer := 0.0
	if m.TotalVisitors > 0 {
		totalRate = float64(m.TotalConversions) / float64(m.TotalVisitors)
		totalRevenuePer = float64(m.TotalRevenueCents) / float64(m.TotalVisitors)
	}
	total := []string{
		"TOTAL",
		strconv.Itoa(m.TotalVisitors),
		strconv.Itoa(m.TotalConversions),
		fmt.Sprintf("%.2f%%", totalRate*100),
		strconv.FormatInt(m.TotalRevenueCents, 10),
		fmt.Sprintf("%.2f", totalRevenuePer),
	}
	if err := w.Write(total); err != nil {
		return fmt.Errorf("failed to write total row: %w", err)
	}

	// Significance summary block.
	sig := m.Significance
	winner := ""
	if sig.WinningVariant != nil {
		winner = *sig.WinningVariant
	}
	summary := [][]string{
		{},
		{"Chi-Square", fmt.Sprintf("%.4f", sig.ChiSquare)},
		{"Degrees of Freedom", strconv.Itoa(sig.DegreesOfFreedom)},
		{"P-Value", fmt.Sprintf("%.4f", sig.PValue)},
		{"Confidence Level", fmt.Sprintf("%.2f%%", sig.ConfidenceLevel)},
		{"Significant", strconv.FormatBool(sig.IsSignificant)},
		{"Winning Variant", winner},
		{"Minimum Sample Size", strconv.Itoa(sig.MinimumSampleSize)},
	}
	for _, row := range summary {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
