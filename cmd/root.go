// Package cmd implements the ragspace command line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benyue1978/ragspace/internal/app"
	"github.com/benyue1978/ragspace/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "ragspace",
	Short: "ragspace - retrieval-augmented search over your documents",
	Long: `ragspace ingests files, websites and GitHub repositories into a
PostgreSQL/pgvector store and answers questions grounded in that content.

Typical flow:
  ragspace add dir ./docs --collection mydocs
  ragspace process --collection mydocs
  ragspace ask "how does the ingestion pipeline work?"`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration and assembles the application. Commands that
// touch the pipeline call this in their RunE.
func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return a, nil
}
