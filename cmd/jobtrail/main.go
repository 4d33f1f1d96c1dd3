package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhq/jobtrail/internal/analytics"
	"github.com/trailhq/jobtrail/internal/api"
	"github.com/trailhq/jobtrail/internal/app"
	"github.com/trailhq/jobtrail/internal/application"
	"github.com/trailhq/jobtrail/internal/config"
	"github.com/trailhq/jobtrail/internal/daterange"
	"github.com/trailhq/jobtrail/internal/workflow"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jobtrail",
	Short: "JobTrail - job application tracker",
	Long:  `JobTrail tracks job applications through a configurable pipeline with an audited stage history and analytics.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracker server",
	Long:  `Start the JobTrail HTTP API server.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Print the configured pipeline stages",
	RunE:  runStages,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print an analytics report",
	RunE:  runStats,
}

var (
	statsRange string
	statsFrom  string
	statsTo    string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jobtrail version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	statsCmd.Flags().StringVar(&statsRange, "range", "all", "date range (1d, 7d, 1m, 3m, all, custom)")
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "custom range start (YYYY-MM-DD)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "custom range end (YYYY-MM-DD)")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, stagesCmd, statsCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	api.Version = version

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return a.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  API: %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Path)
	fmt.Printf("  Remove policy: %s\n", cfg.Workflow.RemovePolicy)
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}

func runStages(cmd *cobra.Command, args []string) error {
	wf, store, err := openStores()
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.StageCounts(context.Background())
	if err != nil {
		return fmt.Errorf("failed to count applications: %w", err)
	}

	for _, s := range wf.Stages() {
		visibility := ""
		if !s.Visible {
			visibility = " (hidden)"
		}
		fmt.Printf("%2d. %-20s %-8s %3d application(s)%s\n", s.Order, s.Name, s.Color, counts[s.Name], visibility)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	rng, err := statsDateRange()
	if err != nil {
		return err
	}

	wf, store, err := openStores()
	if err != nil {
		return err
	}
	defer store.Close()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	classifier := analytics.NewClassifier(cfg.Analytics.InterviewStages, cfg.Analytics.OfferStages)
	svc := analytics.NewService(store, wf, analytics.NewAggregator(classifier))

	snap, err := svc.Snapshot(context.Background(), rng)
	if err != nil {
		return fmt.Errorf("failed to compute analytics: %w", err)
	}

	fmt.Printf("Applications (%s): %d\n", statsRange, snap.TotalInRange)
	fmt.Printf("  Responded:    %d (%.1f%%)\n", snap.RespondedInRange, snap.ResponseRate)
	fmt.Printf("  Interviewed:  %d (%.1f%%)\n", snap.InterviewedInRange, snap.InterviewRate)
	fmt.Printf("  Offers:       %d\n", snap.OffersInRange)
	if snap.OffersInRange > 0 {
		fmt.Printf("  Time to offer: %.1f days\n", snap.TimeToOfferDays)
	}

	fmt.Println("\nBy stage:")
	points := append([]analytics.MetricPoint(nil), snap.StageDistribution...)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Value > points[j].Value })
	for _, p := range points {
		fmt.Printf("  %-20s %3.0f\n", p.Name, p.Value)
	}
	return nil
}

func statsDateRange() (daterange.Range, error) {
	sel := daterange.Selection(statsRange)
	if sel != daterange.SelectionCustom {
		return daterange.Resolve(sel, time.Now())
	}

	from, err := time.Parse("2006-01-02", statsFrom)
	if err != nil {
		return daterange.Range{}, fmt.Errorf("%w: --from must be YYYY-MM-DD", daterange.ErrInvalidRange)
	}
	to, err := time.Parse("2006-01-02", statsTo)
	if err != nil {
		return daterange.Range{}, fmt.Errorf("%w: --to must be YYYY-MM-DD", daterange.ErrInvalidRange)
	}
	return daterange.ResolveCustom(from, to.AddDate(0, 0, 1).Add(-time.Nanosecond))
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStores opens the database read path used by offline commands.
// Logging goes nowhere: these commands print reports, not logs.
func openStores() (*workflow.Manager, *application.BoltStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := application.OpenDB(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wf, err := workflow.NewManager(db, nil, logger)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	store, err := application.NewBoltStore(db, wf)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to open application store: %w", err)
	}
	return wf, store, nil
}
