package app

import (
	"context"
	"fmt"
	"time"

	"jobswarm/internal/ledger"
	"jobswarm/internal/utils"

	"github.com/spf13/cobra"
)

const ledgerCommandWidth = 60

func newLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ledger",
		Short:         "Inspect a run ledger",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	var path string
	show := &cobra.Command{
		Use:           "show <batch-id>",
		Short:         "Print a recorded batch and its job runs",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--ledger is required")
			}
			if code := showBatch(cmd.Context(), path, args[0]); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	show.Flags().StringVar(&path, "ledger", "", "SQLite ledger written by `run --ledger`")

	cmd.AddCommand(show)
	return cmd
}

func showBatch(ctx context.Context, path, id string) int {
	if ctx == nil {
		ctx = context.Background()
	}
	led, err := ledger.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: open ledger: %v\n", err)
		return 1
	}
	defer led.Close()

	if err := led.Ping(ctx); err != nil {
		fmt.Fprintf(stderr, "ERROR: ledger unavailable: %v\n", err)
		return 1
	}
	b, err := led.Batch(ctx, id)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	runs, err := led.Runs(ctx, id)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Batch %s\n", b.ID)
	fmt.Fprintf(stdout, "Source: %s | Jobs: %d | Workers: %d | Shell: %s | Failed: %d\n",
		orDash(b.Source), b.Jobs, b.Workers, orDash(b.Shell), b.Failed)
	finished := "running"
	if !b.FinishedAt.IsZero() {
		finished = b.FinishedAt.Local().Format(time.RFC3339)
	}
	fmt.Fprintf(stdout, "Started: %s | Finished: %s\n", b.StartedAt.Local().Format(time.RFC3339), finished)

	for _, r := range runs {
		status := "ok"
		if !r.OK {
			status = fmt.Sprintf("failed exit=%d", r.ExitCode)
		}
		fmt.Fprintf(stdout, "[%s] %s (%s) %s\n", r.Name, status, utils.FormatElapsed(r.Elapsed),
			utils.SafeTruncate(r.Command, ledgerCommandWidth))
		if r.Error != "" {
			fmt.Fprintf(stdout, "  error: %s\n", utils.SanitizeOutput(r.Error))
		}
	}
	return 0
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
