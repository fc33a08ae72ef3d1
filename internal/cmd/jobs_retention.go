package cmd

import (
	"fmt"
	"strconv"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/jobforge/huntd/pkg/jobstore"
)

var jobsRetentionCmd = &cobra.Command{
	Use:   "retention [days]",
	Short: "Show or set the job retention window",
	Long: `Without an argument, print the current retention window in days.
With an argument, set it; 0 disables expiry.

Examples:
  huntd jobs retention
  huntd jobs retention 30
  huntd jobs retention 0`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobsRetention,
}

func init() {
	jobsCmd.AddCommand(jobsRetentionCmd)
}

func runJobsRetention(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, _, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}

	if len(args) == 0 {
		days := store.Retention(ctx)
		if days == jobstore.RetentionUnlimited {
			fmt.Println("Retention: unlimited")
		} else {
			fmt.Printf("Retention: %d days\n", days)
		}
		return nil
	}

	days, err := strconv.Atoi(args[0])
	if err != nil || days < 0 {
		return exitError(foundry.ExitInvalidArgument, "Retention must be a non-negative number of days", err)
	}

	if err := store.SetRetention(ctx, days); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to store retention setting", err)
	}

	if days == jobstore.RetentionUnlimited {
		fmt.Println("Retention set to unlimited.")
	} else {
		fmt.Printf("Retention set to %d days.\n", days)
	}
	return nil
}
