package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath     string
	cachePath  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "preplab",
	Short: "PrepLab - a self-hosted experimentation engine",
	Long: `PrepLab is a self-hosted A/B experimentation engine:
deterministic bucketing, sticky variant assignment, and a chi-square
significance engine. Single Go binary, embedded SQLite.

Running without a subcommand starts the server (same as 'preplab serve').`,
}

func init() {
	rootCmd.RunE = runServe // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("PREPLAB_DB_PATH", "./preplab.db"), "database path")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", getEnvOrDefault("PREPLAB_CACHE_PATH", "./preplab-cache"), "variant cache path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvOrDefault("PREPLAB_CONFIG", "./preplab.yaml"), "config file path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
