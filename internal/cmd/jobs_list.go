package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored jobs",
	Long: `List the stored job collection.

Examples:
  huntd jobs list
  huntd jobs list --all
  huntd jobs list --json`,
	RunE: runJobsList,
}

var (
	jobsListJSON bool
	jobsListAll  bool
)

func init() {
	jobsCmd.AddCommand(jobsListCmd)

	jobsListCmd.Flags().BoolVar(&jobsListJSON, "json", false, "Output as JSON")
	jobsListCmd.Flags().BoolVar(&jobsListAll, "all", false, "Include hidden jobs")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, _, err := openStore(ctx)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}

	jobs := store.Load(ctx)
	if !jobsListAll {
		visible := jobs[:0]
		for _, j := range jobs {
			if !j.Hidden {
				visible = append(visible, j)
			}
		}
		jobs = visible
	}

	if jobsListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	if len(jobs) == 0 {
		fmt.Println("No stored jobs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tTITLE\tCOMPANY\tPLATFORM\tFLAGS")
	for _, j := range jobs {
		flags := ""
		if j.Applied {
			flags += "applied "
		}
		if j.Hidden {
			flags += "hidden "
		}
		if j.IsNew {
			flags += "new"
		}
		fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\t%s\t%s\n",
			j.ID, j.Score, j.Title, j.Company, j.Platform, flags)
	}
	_ = w.Flush()

	if ts, ok := store.SavedAt(ctx); ok {
		fmt.Printf("\n%d jobs, last saved %s\n", len(jobs), ts.Format("2006-01-02 15:04:05"))
	}
	return nil
}
