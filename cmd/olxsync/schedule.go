package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/config"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/scheduler"
)

// NewScheduleCmd creates the schedule command.
func NewScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the scheduler until interrupted",
		Long: `Schedule starts the minute-resolution scheduler loop: on each tick the
client registry is reloaded and every enabled client whose next-due time has
passed is handed to the orchestrator. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: runScheduleCmd,
	}
	cmd.Flags().Bool("run-now", false, "Run all enabled clients immediately before scheduling")
	cmd.Flags().Duration("tick", scheduler.DefaultTick, "Due-check interval")
	return cmd
}

func runScheduleCmd(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runNow, err := cmd.Flags().GetBool("run-now")
	if err != nil {
		return err
	}
	tick, err := cmd.Flags().GetDuration("tick")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runNow {
		summary := a.Orch.RunAll(ctx, a.Registry)
		a.Logger.Info("initial run finished",
			"total", summary.Total, "succeeded", summary.Succeeded,
			"failed", summary.Failed, "skipped", summary.Skipped)
	}

	sched := &scheduler.Scheduler{
		Store: a.Store,
		Orch:  a.Orch,
		LoadRegistry: func() (*config.Registry, error) {
			return config.Load(a.ConfigPath)
		},
		Log:  a.Logger,
		Tick: tick,
		Now:  time.Now,
	}
	return sched.Run(ctx)
}
