package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/oslerlabs/simcore/internal/config"
	"github.com/oslerlabs/simcore/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "simcore",
	Short: "Virtual patient encounters for clinical training",
	Long:  "Simcore is an AI-driven virtual patient engine for practicing clinical encounters, with specialty workflows and automated evaluation.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides SIMCORE_DB env var)")

	rootCmd.AddCommand(consultCmd)
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then SIMCORE_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}

// loadConfig parses the environment and builds the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	return cfg, log, nil
}
