package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/preplab/preplab/internal/metrics"
	"github.com/preplab/preplab/internal/store"
)

var (
	exportFormat string
	exportRange  string
	exportRaw    bool
)

var exportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Export experiment metrics or raw assignments",
	Long: `Export the per-variant metrics report, or with --raw the individual
assignment records, in CSV or JSON format.

Examples:
  preplab export paywall_test > metrics.csv
  preplab export paywall_test --format json > metrics.json
  preplab export paywall_test --raw --format csv > assignments.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	exportCmd.Flags().StringVarP(&exportRange, "range", "r", "all_time",
		"date range (last_7_days, last_14_days, last_30_days, last_90_days, all_time)")
	exportCmd.Flags().BoolVar(&exportRaw, "raw", false, "export raw assignment records instead of the metrics report")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	name := args[0]

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()
		dr := metrics.Preset(exportRange)

		if exportRaw {
			assignments, err := s.ListAssignments(ctx, name, dr.From, dr.To)
			if err != nil {
				return fmt.Errorf("failed to list assignments: %w", err)
			}
			if exportFormat == "csv" {
				return exportAssignmentsCSV(assignments)
			}
			return exportAssignmentsJSON(assignments)
		}

		agg := metrics.NewAggregator(s, 0)
		report, err := agg.ExperimentMetrics(ctx, name, dr)
		if err != nil {
			return err
		}
		if exportFormat == "csv" {
			return report.WriteCSV(os.Stdout)
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	})
}

func exportAssignmentsCSV(assignments []*store.VariantAssignment) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"assigned_at", "user_id", "variant", "bucket", "source"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, a := range assignments {
		bucket := ""
		if a.Bucket != nil {
			bucket = strconv.Itoa(*a.Bucket)
		}
		row := []string{
			strconv.FormatInt(a.AssignedAt.Unix(), 10),
			a.UserID,
			a.Variant,
			bucket,
			string(a.Source),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

func exportAssignmentsJSON(assignments []*store.VariantAssignment) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		Assignments []*store.VariantAssignment `json:"assignments"`
	}{Assignments: assignments})
}
