package cli

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/store"
)

func init() {
	rootCmd.AddCommand(newDeleteCmd())
}

func newDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an experiment and all its data",
		Long: `Delete an experiment along with its assignments. This cannot be
undone. Pass --force to skip the confirmation prompt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if !force {
				confirmed, err := confirmDelete(name)
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Println("Aborted.")
					return nil
				}
			}

			return withRegistry(func(_ *store.SQLiteStore, reg *registry.Registry) error {
				if err := reg.Delete(context.Background(), name); err != nil {
					return fmt.Errorf("failed to delete experiment: %w", err)
				}
				fmt.Printf("Deleted experiment '%s'\n", name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")

	return cmd
}

func confirmDelete(name string) (bool, error) {
	prompt := promptui.Select{
		Label: fmt.Sprintf("Delete experiment '%s' and all its assignments?", name),
		Items: []string{"Cancel", "Delete"},
	}

	_, choice, err := prompt.Run()
	if err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return choice == "Delete", nil
}
