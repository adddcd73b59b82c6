package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imovel-monitor/internal/config"
	"imovel-monitor/internal/database"
	"imovel-monitor/internal/logging"
	"imovel-monitor/internal/models"
	"imovel-monitor/internal/orchestrator"
	"imovel-monitor/internal/scheduler"
	"imovel-monitor/internal/scraper"
	"imovel-monitor/internal/search"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run every agency adapter once and store new listings",
	Long: `Runs the same pipeline as the API trigger, synchronously: fetch all agency pages,
keep the listings not seen before, store them and record the run.

With --dry-run nothing is written: an in-memory store is used and the new listings are
printed as JSON together with the run statistics.`,
	RunE: runMonitorCmd,
}

var (
	runDryRun   bool
	runDealType string
	runVerbose  bool
)

func init() {
	runCommand.Flags().BoolVar(&runDryRun, "dry-run", false, "Use an in-memory store and print the collected listings")
	runCommand.Flags().StringVar(&runDealType, "deal-type", "", "Only collect one market segment (RENT or SALE)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCommand)
}

type runReport struct {
	Outcome  scheduler.Outcome `json:"outcome"`
	Listings []models.Listing  `json:"listings,omitempty"`
}

func runMonitorCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	if runVerbose {
		level = logging.LevelDebug
	}
	logging.SetLevel(level)

	opts := orchestrator.Options{Parallel: cfg.Scraper.ParallelAdapters}
	if runDealType != "" {
		dt, ok := models.ParseDealType(runDealType)
		if !ok {
			return fmt.Errorf("invalid --deal-type %q", runDealType)
		}
		opts.Filter = &dt
	}

	adapters, err := scraper.NewAdapters(scraper.ConfiguredSites(cfg), scraper.NewFetcher(cfg.Scraper))
	if err != nil {
		return fmt.Errorf("invalid site configuration: %w", err)
	}

	var (
		repo    database.Repository
		memory  *database.MemoryStore
		indexer scheduler.Indexer
	)
	if runDryRun {
		memory = database.NewMemoryStore()
		repo = memory
	} else {
		repo, err = database.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer repo.Close()

		if ms := cfg.Search.Meilisearch; ms.Enabled {
			indexer = search.NewSearchClient(ms.Host, ms.APIKey, ms.Index)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := scheduler.NewCoordinator(orchestrator.New(adapters, opts), repo, indexer, scheduler.RunSettings{
		Timeout: cfg.Scraper.GetRunTimeout(),
	})
	outcome, runErr := coordinator.RunNow(ctx)

	report := runReport{Outcome: outcome}
	if memory != nil {
		report.Listings = memory.Listings()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return runErr
}
