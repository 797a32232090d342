package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/store"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments",
	Long:  `List experiments with their status, variants, and traffic split.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (draft, running, concluded)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withRegistry(func(_ *store.SQLiteStore, reg *registry.Registry) error {
		status := store.ExperimentStatus(listStatus)
		if listStatus != "" && !store.ValidStatus(status) {
			return fmt.Errorf("invalid status %q (want draft, running, or concluded)", listStatus)
		}

		experiments, err := reg.List(context.Background(), status)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if len(experiments) == 0 {
			fmt.Println("No experiments yet.")
			fmt.Println()
			fmt.Println("Create one with:")
			fmt.Println("  preplab create my_experiment --variants \"control,treatment\"")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tVARIANTS\tSPLIT\tWINNER\tCREATED")

		for _, exp := range experiments {
			winner := "-"
			if exp.WinningVariant != nil {
				winner = *exp.WinningVariant
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				exp.Name,
				strings.ToUpper(string(exp.Status)),
				len(exp.Variants),
				formatSplit(exp),
				winner,
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}

// formatSplit renders the split in declared variant order, e.g. "80/20".
func formatSplit(exp *store.Experiment) string {
	parts := make([]string, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		parts = append(parts, fmt.Sprintf("%d", exp.TrafficSplit[v]))
	}
	return strings.Join(parts, "/")
}
