package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/preplab/preplab/internal/cache"
	"github.com/preplab/preplab/internal/config"
	"github.com/preplab/preplab/internal/metrics"
	"github.com/preplab/preplab/internal/registry"
	"github.com/preplab/preplab/internal/resolver"
	"github.com/preplab/preplab/internal/server"
	"github.com/preplab/preplab/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the experimentation server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	// Explicit flags beat the config file, matching the other commands.
	if rootCmd.PersistentFlags().Changed("db") {
		cfg.Storage.DBPath = dbPath
	}
	if rootCmd.PersistentFlags().Changed("cache") {
		cfg.Cache.Path = cachePath
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	s, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	vc, err := cache.NewBadgerCache(cache.BadgerConfig{
		DataPath: cfg.Cache.Path,
		InMemory: cfg.Cache.InMemory,
	})
	if err != nil {
		return fmt.Errorf("failed to open variant cache: %w", err)
	}
	defer vc.Close()

	reg := registry.New(s)
	res := resolver.New(reg, s, vc, logger, resolver.Config{
		RemoteTimeout: cfg.Resolver.RemoteTimeout,
		DisableSync:   cfg.Resolver.DisableSync,
	})
	agg := metrics.NewAggregator(s, 0)

	srv := server.New(s, reg, res, agg, cfg.Server.Port, cfg.Server.TokenFile, logger)
	return srv.Start()
}
