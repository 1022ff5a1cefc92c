package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/learnerinfo/lis/internal/app"
	"github.com/learnerinfo/lis/internal/config"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the enrollment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			printBanner(a.Config())

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := a.Start(ctx); err != nil {
				return err
			}
			return a.WaitForShutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}

// printBanner logs the configuration summary at startup.
func printBanner(cfg *config.Config) {
	log.Printf("LIS %s (commit: %s)", version, commit)
	log.Printf("Configuration:")
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Storage:  %s", cfg.Storage.Type)
	log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	log.Printf("  Catalog:  %v", cfg.Catalog.Enabled)
	log.Printf("  Auth:     %v", cfg.Auth.Enabled)
}
