package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/reviewdle/internal/config"
	"github.com/JakeFAU/reviewdle/internal/server"
)

// buildApp is the application factory. It's a variable so tests can
// substitute it.
var buildApp = server.Build

type rootOptions struct {
	configPath string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "reviewdle",
		Short: "Daily game-guessing puzzle built from Steam reviews.",
		Long: `reviewdle picks one catalog game per day and serves up to six of its
user reviews as clues. It can run the HTTP API or print today's puzzle.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a config file (optional)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newTodayCmd(opts))
	return cmd
}

// loadApp reads configuration and builds the application.
func (o *rootOptions) loadApp(ctx context.Context) (*server.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	app, err := buildApp(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return app, nil
}
