package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobforge/huntd/internal/config"
	"github.com/jobforge/huntd/internal/observability"
	"github.com/jobforge/huntd/pkg/handshake"
	"github.com/jobforge/huntd/pkg/jobstore"
	"github.com/jobforge/huntd/pkg/session"
	"github.com/jobforge/huntd/pkg/worker"
)

var huntCmd = &cobra.Command{
	Use:   "hunt",
	Short: "Run one interactive search session in the terminal",
	Long: `Launch the search worker and drive the session from the terminal:
ranked jobs are listed for selection and generated applications for
approval, with decisions read from stdin.

Examples:
  huntd hunt --keywords "golang backend" --remote
  huntd hunt --keywords "data engineer" --location Berlin --max-jobs 25`,
	RunE: runHunt,
}

var (
	huntKeywords   string
	huntLocation   string
	huntRemote     bool
	huntMaxJobs    int
	huntMaxAgeDays int
)

func init() {
	rootCmd.AddCommand(huntCmd)

	huntCmd.Flags().StringVarP(&huntKeywords, "keywords", "k", "", "Search keywords (required)")
	huntCmd.Flags().StringVarP(&huntLocation, "location", "l", "", "Search location")
	huntCmd.Flags().BoolVar(&huntRemote, "remote", false, "Include remote positions")
	huntCmd.Flags().IntVar(&huntMaxJobs, "max-jobs", 0, "Maximum jobs per run")
	huntCmd.Flags().IntVar(&huntMaxAgeDays, "job-age-days", 0, "Maximum job posting age in days")
	_ = huntCmd.MarkFlagRequired("keywords")
}

const huntPollInterval = 250 * time.Millisecond

func runHunt(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}

	d, err := buildDaemon(ctx, cfg, observability.CLILogger)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to assemble session", err)
	}
	defer d.cleanup()

	// The worker polls the bridge over HTTP, so the control server runs in
	// the background even in terminal mode.
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- d.srv.Start(ctx, cfg.Server.ShutdownTimeout)
	}()

	run := worker.DefaultRunConfig()
	run.Keywords = huntKeywords
	run.Location = huntLocation
	run.Remote = huntRemote
	if huntMaxJobs > 0 {
		run.MaxJobs = huntMaxJobs
	}
	if huntMaxAgeDays > 0 {
		run.MaxAgeDays = huntMaxAgeDays
	}
	if providers, perr := config.LoadProviders(providersPath(cfg)); perr == nil {
		run.Providers = providers
	}

	if err := d.sess.Start(ctx, run); err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			return exitError(foundry.ExitInvalidArgument, "Invalid search parameters", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to start worker", err)
	}

	if err := huntLoop(ctx, d.sess); err != nil {
		return err
	}

	stop()
	<-serverErr
	return nil
}

// huntLoop watches the session and handles the decision checkpoints until a
// terminal state is reached.
func huntLoop(ctx context.Context, sess *session.Session) error {
	stdin := bufio.NewReader(os.Stdin)
	var lastStage string

	for {
		select {
		case <-ctx.Done():
			_ = sess.Cancel()
			return exitError(foundry.ExitSignalInt, "Session cancelled", ctx.Err())
		case <-time.After(huntPollInterval):
		}

		snap := sess.Snapshot()
		if snap.Stage != "" && snap.Stage != lastStage {
			fmt.Printf("[%3.0f%%] %s: %s\n", snap.Progress, snap.Stage, snap.Message)
			lastStage = snap.Stage
		}

		switch snap.State {
		case session.StateAwaitingSelection:
			if err := promptSelection(ctx, sess, stdin, snap); err != nil {
				observability.CLILogger.Warn("Selection delivery failed, will re-prompt", zap.Error(err))
			}
			lastStage = ""
		case session.StateAwaitingApproval:
			if err := promptApproval(ctx, sess, stdin, snap); err != nil {
				observability.CLILogger.Warn("Approval delivery failed, will re-prompt", zap.Error(err))
			}
			lastStage = ""
		case session.StateCompleted:
			fmt.Println("\nSession complete.")
			if snap.Message != "" {
				fmt.Println(snap.Message)
			}
			return nil
		case session.StateCancelled:
			return exitError(foundry.ExitSignalInt, "Session cancelled", nil)
		case session.StateFailed:
			return exitError(foundry.ExitExternalServiceUnavailable, "Session failed", fmt.Errorf("%s", snap.Error))
		}
	}
}

func promptSelection(ctx context.Context, sess *session.Session, stdin *bufio.Reader, snap session.Snapshot) error {
	fmt.Printf("\nFound %d ranked jobs:\n\n", len(snap.RankedJobs))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tTITLE\tCOMPANY\tLOCATION")
	for _, job := range snap.RankedJobs {
		fmt.Fprintf(w, "%s\t%.1f\t%s\t%s\t%s\n",
			job.ID, job.Score, job.Title, job.Company, job.Location)
	}
	_ = w.Flush()

	fmt.Print("\nSelect job ids (comma separated): ")
	line, err := stdin.ReadString('\n')
	if err != nil {
		return err
	}

	var ids []jobstore.ID
	for _, part := range strings.Split(line, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := strconv.ParseInt(part, 10, 64); err != nil {
			fmt.Printf("Ignoring non-numeric id %q\n", part)
			continue
		}
		ids = append(ids, jobstore.ID(part))
	}
	if len(ids) == 0 {
		fmt.Println("No valid ids entered.")
		return nil
	}

	return sess.SubmitSelection(ctx, ids)
}

func promptApproval(ctx context.Context, sess *session.Session, stdin *bufio.Reader, snap session.Snapshot) error {
	fmt.Printf("\n%d generated applications await approval:\n", len(snap.Applications))

	var approved []handshake.ApprovalItem
	for _, app := range snap.Applications {
		fmt.Printf("\n--- %s at %s ---\n%s\n", app.JobTitle, app.Company, app.ApplicationText)
		fmt.Print("Approve? [y/N]: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(line), "y") {
			approved = append(approved, handshake.ApprovalItem{JobID: app.JobID})
		}
	}

	fmt.Printf("\nApproving %d of %d applications.\n", len(approved), len(snap.Applications))
	return sess.SubmitApproval(ctx, approved)
}
