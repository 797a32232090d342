package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/store"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		variants    string
		split       string
		description string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new experiment in draft status.

Variants are comma-separated. The traffic split defaults to an even
division; pass --split to override it. Split percentages must sum
to 100.

Examples:
  preplab create paywall_test --variants "direct_paywall,freemium"
  preplab create cta_copy --variants "control,treatment" --split "control=80,treatment=20"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			// Without --variants, fall into the interactive flow.
			if variants == "" {
				var err error
				variants, split, err = promptExperiment()
				if err != nil {
					return err
				}
			}

			variantList := strings.Split(variants, ",")
			for i := range variantList {
				variantList[i] = strings.TrimSpace(variantList[i])
			}
			if len(variantList) < 2 {
				return fmt.Errorf("need at least 2 variants. Example: --variants \"control,treatment\"")
			}

			trafficSplit, err := parseSplit(split, variantList)
			if err != nil {
				return err
			}

			return withRegistry(func(_ *store.SQLiteStore, reg *registry.Registry) error {
				exp, err := reg.Create(context.Background(), registry.CreateInput{
					Name:         name,
					Description:  description,
					Variants:     variantList,
					TrafficSplit: trafficSplit,
				})
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				fmt.Printf("Created experiment '%s' (status: %s)\n", exp.Name, exp.Status)
				for _, v := range exp.Variants {
					fmt.Printf("  %s: %d%%\n", v, exp.TrafficSplit[v])
				}
				fmt.Println("\nStart it with:")
				fmt.Printf("  preplab status %s running\n", exp.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variants, "variants", "v", "", "comma-separated variant names (prompts when omitted)")
	cmd.Flags().StringVarP(&split, "split", "s", "", "traffic split, e.g. \"control=80,treatment=20\" (default: even)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "experiment description")

	return cmd
}

// promptExperiment asks for variants and a split preset interactively.
// An empty split string means even division.
func promptExperiment() (variants, split string, err error) {
	variantPrompt := promptui.Prompt{
		Label: "Variants (comma-separated, e.g. control,treatment)",
		Validate: func(input string) error {
			if len(strings.Split(input, ",")) < 2 {
				return fmt.Errorf("need at least 2 variants")
			}
			return nil
		},
	}
	variants, err = variantPrompt.Run()
	if err != nil {
		return "", "", fmt.Errorf("prompt failed: %w", err)
	}

	splitPrompt := promptui.Select{
		Label: "Traffic split",
		Items: []string{"Even split", "Custom"},
	}
	_, choice, err := splitPrompt.Run()
	if err != nil {
		return "", "", fmt.Errorf("prompt failed: %w", err)
	}
	if choice == "Even split" {
		return variants, "", nil
	}

	customPrompt := promptui.Prompt{
		Label: "Split (variant=pct, comma-separated, must sum to 100)",
	}
	split, err = customPrompt.Run()
	if err != nil {
		return "", "", fmt.Errorf("prompt failed: %w", err)
	}
	return variants, split, nil
}

// parseSplit turns "a=50,b=50" into a percentage map. An empty spec
// yields an even split, with the remainder going to the variants that
// sort first.
func parseSplit(spec string, variants []string) (map[string]int, error) {
	if spec == "" {
		return evenSplit(variants), nil
	}

	split := make(map[string]int, len(variants))
	for _, part := range strings.Split(spec, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid split entry %q, want variant=percentage", part)
		}
		pct, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid percentage in split entry %q", part)
		}
		split[strings.TrimSpace(kv[0])] = pct
	}
	return split, nil
}

func evenSplit(variants []string) map[string]int {
	n := len(variants)
	if n == 0 {
		return map[string]int{}
	}

	base := 100 / n
	remainder := 100 % n

	sorted := make([]string, n)
	copy(sorted, variants)
	sort.Strings(sorted)

	split := make(map[string]int, n)
	for i, v := range sorted {
		split[v] = base
		if i < remainder {
			split[v]++
		}
	}
	return split
}
