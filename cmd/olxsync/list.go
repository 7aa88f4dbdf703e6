package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured clients",
		Args:  cobra.NoArgs,
		RunE:  runListCmd,
	}
}

func runListCmd(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tAPI KEY\tSCHEDULE\tMAX PAGES\tMAX LISTINGS")
	for _, id := range a.Registry.IDs() {
		c := a.Registry.Clients[id]
		hasKey := "no"
		if strings.TrimSpace(c.APIKey) != "" || strings.TrimSpace(c.KeyringAccount) != "" {
			hasKey = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%d\t%d\n",
			id, c.Name, c.IsEnabled(), hasKey, c.Schedule, c.MaxPages, c.MaxListings)
	}
	return w.Flush()
}
