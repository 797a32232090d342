package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/preplab/preplab/internal/cache"
	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/resolver"
	"github.com/preplab/preplab/internal/store"
)

var forceCmd = &cobra.Command{
	Use:   "force <user-id> <experiment> <variant>",
	Short: "Pin a user to a specific variant",
	Long: `Pin a user to a variant, bypassing the bucketing hash. The variant
must be declared on the experiment. Forced assignments carry no bucket
and win all future lookups for that user.

Example:
  preplab force user-123 paywall_test freemium`,
	Args: cobra.ExactArgs(3),
	RunE: runForce,
}

func init() {
	rootCmd.AddCommand(forceCmd)
}

func runForce(cmd *cobra.Command, args []string) error {
	userID, experimentName, variant := args[0], args[1], args[2]

	return withStore(func(s *store.SQLiteStore) error {
		// The CLI is not a serving device; a scratch in-memory cache
		// keeps the resolver happy without leaving entries behind.
		r := resolver.New(registry.New(s), s, cache.NewMemoryCache(), zap.NewNop(), resolver.Config{})

		res, err := r.ForceAssign(context.Background(), userID, experimentName, variant)
		if err != nil {
			return err
		}

		fmt.Printf("Forced %s to variant '%s' in '%s'\n", userID, res.Variant, experimentName)
		return nil
	})
}
