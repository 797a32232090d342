package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/preplab/preplab/internal/metrics"
	"github.com/preplab/preplab/internal/store"
)

var resultsRange string

var resultsCmd = &cobra.Command{
	Use:   "results <name>",
	Short: "Show results and significance for an experiment",
	Long: `Show per-variant conversion and revenue metrics plus the chi-square
significance verdict.

Examples:
  preplab results paywall_test
  preplab results paywall_test --range last_7_days`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().StringVarP(&resultsRange, "range", "r", "all_time",
		"date range (last_7_days, last_14_days, last_30_days, last_90_days, all_time)")
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withStore(func(s *store.SQLiteStore) error {
		agg := metrics.NewAggregator(s, 0)
		report, err := agg.ExperimentMetrics(context.Background(), name, metrics.Preset(resultsRange))
		if err != nil {
			return err
		}

		fmt.Printf("EXPERIMENT: %s\n", report.ExperimentName)
		fmt.Printf("STATUS: %s\n", strings.ToUpper(string(report.Status)))
		fmt.Printf("RANGE: %s\n", report.DateRange.Label)
		fmt.Println()

		fmt.Println("VARIANT           VISITORS  CONVERSIONS  RATE     REVENUE     REV/VISITOR")
		fmt.Println(strings.Repeat("─", 75))

		for _, v := range report.Variants {
			name := v.Variant
			if len(name) > 16 {
				name = name[:13] + "..."
			}
			fmt.Printf("%-16s  %-8d  %-11d  %-7s  $%-9.2f  $%.2f\n",
				name,
				v.Visitors,
				v.Conversions,
				fmt.Sprintf("%.2f%%", v.ConversionRate*100),
				float64(v.RevenueCents)/100,
				v.RevenuePerVisitor/100,
			)
		}

		fmt.Println(strings.Repeat("─", 75))
		fmt.Printf("%-16s  %-8d  %-11d\n", "TOTAL", report.TotalVisitors, report.TotalConversions)
		fmt.Println()

		sig := report.Significance
		fmt.Printf("Chi-square: %.4f (df=%d), p-value: %.4f\n",
			sig.ChiSquare, sig.DegreesOfFreedom, sig.PValue)

		switch {
		case sig.IsSignificant && sig.WinningVariant != nil:
			fmt.Printf("Statistical significance: %.2f%% confident \"%s\" is the winner\n",
				sig.ConfidenceLevel, *sig.WinningVariant)
		case sig.ConfidenceLevel >= 90:
			fmt.Printf("Statistical significance: %.2f%% confidence (not yet significant)\n",
				sig.ConfidenceLevel)
		default:
			fmt.Println("Statistical significance: not enough data to determine a winner")
		}
		fmt.Printf("Minimum sample size per variant: %d\n", sig.MinimumSampleSize)

		return nil
	})
}
