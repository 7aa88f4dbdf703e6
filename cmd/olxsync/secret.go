package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/secrets"
)

// NewSecretCmd creates the secret command group for managing CRM API keys
// in the OS keychain.
func NewSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage CRM API keys in the OS keychain",
		Long: `Secret stores GoHighLevel API keys in the OS keychain instead of the
registry file. Point the client's keyring_account config field at the
account name used here (default: olxsync:crm:<client-id>).`,
	}
	cmd.AddCommand(newSecretSetCmd())
	cmd.AddCommand(newSecretDeleteCmd())
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <client-id> <api-key>",
		Short: "Store a client's API key in the keychain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account := secrets.DefaultAccount(args[0])
			if err := secrets.SetAPIKey(account, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"stored API key for %s (set keyring_account: %q in the config)\n", args[0], account)
			return nil
		},
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <client-id>",
		Short: "Remove a client's API key from the keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return secrets.DeleteAPIKey(secrets.DefaultAccount(args[0]))
		},
	}
}
