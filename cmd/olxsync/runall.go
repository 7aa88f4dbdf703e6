package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunAllCmd creates the run-all command.
func NewRunAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Run the pipeline for all enabled clients now",
		Long: `Run-all executes the pipeline for every enabled client immediately,
bypassing schedules, under the configured concurrency bound. Failures are
contained per client; the command fails only when no client run succeeds.`,
		Args: cobra.NoArgs,
		RunE: runRunAllCmd,
	}
}

func runRunAllCmd(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary := a.Orch.RunAll(ctx, a.Registry)

	out := cmd.OutOrStdout()
	for _, res := range summary.Results {
		printResult(cmd, res)
	}
	fmt.Fprintf(out, "clients=%d succeeded=%d failed=%d skipped=%d\n",
		summary.Total, summary.Succeeded, summary.Failed, summary.Skipped)

	if summary.Total == 0 {
		return errors.New("no enabled clients configured")
	}
	if summary.Succeeded == 0 {
		return errors.New("all client runs failed")
	}
	return nil
}
