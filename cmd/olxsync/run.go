package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/pipeline"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <client-id>",
		Short: "Run the pipeline for one client now",
		Long: `Run executes the full pipeline for a single client immediately,
bypassing its schedule. A disabled client runs anyway (manual override).
The exit code is non-zero when the client's run fails or its configuration
is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: runRunCmd,
	}
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := a.Orch.RunOne(ctx, a.Registry, args[0])
	if err != nil {
		return err
	}
	printResult(cmd, res)

	switch res.Status {
	case pipeline.StatusOK:
		return nil
	case pipeline.StatusSkipped:
		return fmt.Errorf("client %s is already running", res.ClientID)
	default:
		return fmt.Errorf("run for client %s finished with status %s", res.ClientID, res.Status)
	}
}

func printResult(cmd *cobra.Command, res pipeline.RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s): %s\n", res.ClientID, res.ClientName, res.Status)
	fmt.Fprintf(out, "  discovered=%d accepted=%d rejected=%d skipped=%d extracted=%d synced=%d failed=%d duration=%s\n",
		res.Discovered, res.Accepted, res.Rejected, res.Skipped,
		res.Extracted, res.Synced, res.Failed, res.Duration)
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
}
