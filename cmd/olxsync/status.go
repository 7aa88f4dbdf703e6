package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/config"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/scheduler"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show each client's last run and next due time",
		Args:  cobra.NoArgs,
		RunE:  runStatusCmd,
	}
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := &scheduler.Scheduler{
		Store: a.Store,
		Orch:  a.Orch,
		LoadRegistry: func() (*config.Registry, error) {
			return config.Load(a.ConfigPath)
		},
		Log: a.Logger,
	}
	statuses, err := sched.Status(cmd.Context(), a.Registry)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tSCHEDULE\tLAST RUN\tLAST STATUS\tNEXT DUE")
	for _, st := range statuses {
		lastRun := "never"
		if !st.LastRun.IsZero() {
			lastRun = st.LastRun.Local().Format(time.DateTime)
		}
		lastStatus := st.LastStatus
		if lastStatus == "" {
			lastStatus = "-"
		}
		nextDue := "-"
		switch {
		case st.ScheduleError != "":
			nextDue = "invalid schedule"
		case st.Enabled && !st.NextDue.IsZero():
			nextDue = st.NextDue.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\t%s\n",
			st.ClientID, st.Name, st.Enabled, st.Schedule, lastRun, lastStatus, nextDue)
	}
	return w.Flush()
}
