package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var jobsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Apply the retention policy now",
	Long: `Expire the stored job collection if it is older than the retention
window. With --force the collection is cleared regardless of age.`,
	RunE: runJobsClean,
}

var jobsCleanForce bool

func init() {
	jobsCmd.AddCommand(jobsCleanCmd)

	jobsCleanCmd.Flags().BoolVar(&jobsCleanForce, "force", false, "Clear the collection regardless of age")
}

func runJobsClean(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, _, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}

	if jobsCleanForce {
		if err := store.Save(ctx, nil); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to clear job collection", err)
		}
		fmt.Println("Job collection cleared.")
		return nil
	}

	if store.ExpireStale(ctx) {
		fmt.Println("Stale job collection expired.")
	} else {
		fmt.Println("Job collection is within the retention window.")
	}
	return nil
}
