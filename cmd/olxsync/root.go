package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/novumhouse/olx-scraper-gohighlevel/internal/config"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/orchestrator"
	"github.com/novumhouse/olx-scraper-gohighlevel/internal/store"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "olxsync",
		Short: "Multi-client OLX listing scraper with GoHighLevel sync",
		Long: `olxsync discovers job listings on OLX for each configured client,
filters them by the client's keyword rules, reveals and extracts contact
details, and upserts the results into the client's GoHighLevel workspace.

Each client has its own search scopes, keyword rules, limits, schedule,
result file, and dedup state; failures in one client's run never affect
another's.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "clients.yml", "Client registry file")
	cmd.PersistentFlags().String("data-dir", "data", "Directory for dedup state, locks, results, and logs")
	cmd.PersistentFlags().Bool("headless", true, "Run the browser headless (use --headless=false to watch it)")
	cmd.PersistentFlags().IntP("concurrency", "k", orchestrator.DefaultConcurrency, "Max simultaneous client pipelines")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewRunAllCmd())
	cmd.AddCommand(NewScheduleCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSecretCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles what every subcommand needs: flags resolved, logger built,
// registry loaded, state store opened.
type app struct {
	Logger   *log.Logger
	Registry *config.Registry
	Store    *store.DB
	Orch     *orchestrator.Orchestrator

	ConfigPath string
	DataDir    string
}

func buildApp(cmd *cobra.Command) (*app, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return nil, err
	}
	headless, err := cmd.Flags().GetBool("headless")
	if err != nil {
		return nil, err
	}
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return nil, err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})

	reg, err := config.Load(configPath)
	if err != nil {
		// The one globally fatal configuration error.
		return nil, err
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.Open(statePath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	orch := orchestrator.New(db, logger, orchestrator.Options{
		Concurrency: concurrency,
		Headless:    headless,
		DataDir:     dataDir,
	})

	return &app{
		Logger:     logger,
		Registry:   reg,
		Store:      db,
		Orch:       orch,
		ConfigPath: configPath,
		DataDir:    dataDir,
	}, nil
}

func (a *app) Close() {
	_ = a.Store.Close()
}

func statePath(dataDir string) string {
	return filepath.Join(dataDir, "olxsync.db")
}
