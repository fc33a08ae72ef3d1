package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jobforge/huntd/internal/config"
	"github.com/jobforge/huntd/internal/observability"
	"github.com/jobforge/huntd/pkg/jobstore"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and maintain the stored job collection",
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

// openStore builds the job store the same way the daemon does, for commands
// that operate on storage directly.
func openStore(ctx context.Context) (*jobstore.Store, *config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	backend, err := buildStoreBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	return jobstore.NewStore(backend, observability.CLILogger), cfg, nil
}
