package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/store"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	var winner string

	cmd := &cobra.Command{
		Use:   "status <name> <status>",
		Short: "Move an experiment through its lifecycle",
		Long: `Change an experiment's status. Valid transitions:

  draft   -> running
  running -> concluded

Concluding can declare a winning variant with --winner.

Examples:
  preplab status paywall_test running
  preplab status paywall_test concluded --winner freemium`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			status := store.ExperimentStatus(args[1])
			if !store.ValidStatus(status) {
				return fmt.Errorf("invalid status %q (want draft, running, or concluded)", args[1])
			}

			var winningVariant *string
			if winner != "" {
				if status != store.StatusConcluded {
					return fmt.Errorf("--winner only applies when concluding")
				}
				winningVariant = &winner
			}

			return withRegistry(func(_ *store.SQLiteStore, reg *registry.Registry) error {
				if err := reg.UpdateStatus(context.Background(), name, status, winningVariant); err != nil {
					return err
				}

				fmt.Printf("Experiment '%s' is now %s\n", name, status)
				if winningVariant != nil {
					fmt.Printf("Winning variant: %s\n", *winningVariant)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&winner, "winner", "w", "", "winning variant to declare when concluding")

	return cmd
}
