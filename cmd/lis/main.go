// Package main implements the lis binary: the enrollment API server and
// the administrative commands around it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/learnerinfo/lis/internal/app"
	"github.com/learnerinfo/lis/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configFile string
	dataDir    string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "lis",
		Short:   "LIS - Learner Information System enrollment service",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Long: `lis serves the enrollment dashboard API and manages the per-year
enrollment files, the school registry and user accounts.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Base directory for all data files")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(yearsCmd(opts))
	rootCmd.AddCommand(reportCmd(opts))
	rootCmd.AddCommand(transitionCmd(opts))
	rootCmd.AddCommand(schoolCmd(opts))
	rootCmd.AddCommand(submitCmd(opts))
	rootCmd.AddCommand(uploadCmd(opts))
	rootCmd.AddCommand(exportCmd(opts))
	rootCmd.AddCommand(userCmd(opts))
	rootCmd.AddCommand(catalogCmd(opts))
	rootCmd.AddCommand(snapshotCmd(opts))

	return rootCmd
}

// loadConfig loads configuration from file, environment and flags, in
// increasing order of priority.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	var cfg *config.Config
	if opts.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
		// Derived paths follow the flag unless set explicitly.
		if opts.configFile == "" && os.Getenv("LIS_STORAGE_PATH") == "" {
			cfg.Storage.Path = ""
		}
		if opts.configFile == "" && os.Getenv("LIS_CATALOG_PATH") == "" {
			cfg.Catalog.Path = ""
		}
	}
	return cfg, nil
}

// openApp builds and opens the services without the HTTP server. Callers
// must Close the result.
func openApp(cmd *cobra.Command, opts *globalOptions) (*app.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Open(cmd.Context()); err != nil {
		return nil, err
	}
	return a, nil
}
