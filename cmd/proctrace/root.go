package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/proctrace/internal/config"
	"github.com/aretw0/proctrace/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "proctrace",
	Short: "proctrace streams live traces of long-running operations",
	Long: `proctrace keeps a live step tree for every running operation, pushes each change
to subscribed observers over server-sent events and persists the final tree as a JSON snapshot.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "proctrace.yaml", "Path to the configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().String("dir", "", "Working directory holding tmp/log snapshots (overrides config)")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.WorkDir = dir
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Log.JSON {
		return logging.NewJSON(level), nil
	}
	return logging.New(level), nil
}
