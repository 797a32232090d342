package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/store"
)

var splitCmd = &cobra.Command{
	Use:   "split <name> <split>",
	Short: "Change an experiment's traffic split",
	Long: `Change the traffic split of an existing experiment. The split must
cover exactly the declared variants and sum to 100.

Already-assigned users keep their variant; only new assignments follow
the updated split.

Example:
  preplab split paywall_test "direct_paywall=90,freemium=10"`,
	Args: cobra.ExactArgs(2),
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	name := args[0]

	newSplit, err := parseSplit(args[1], nil)
	if err != nil {
		return err
	}
	if len(newSplit) == 0 {
		return fmt.Errorf("empty split")
	}

	return withRegistry(func(_ *store.SQLiteStore, reg *registry.Registry) error {
		if err := reg.UpdateTrafficSplit(context.Background(), name, newSplit); err != nil {
			return err
		}

		fmt.Printf("Updated traffic split for '%s':\n", name)
		exp, err := reg.Get(context.Background(), name)
		if err == nil && exp != nil {
			for _, v := range exp.Variants {
				fmt.Printf("  %s: %d%%\n", v, exp.TrafficSplit[v])
			}
		}
		return nil
	})
}
