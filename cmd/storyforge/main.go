// StoryForge migration CLI
// Restructures a flat book corpus into the story hierarchy
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nainya/storyforge/internal/config"
	"github.com/nainya/storyforge/internal/logger"
	"github.com/nainya/storyforge/internal/metrics"
	"github.com/nainya/storyforge/internal/observability"
	"github.com/nainya/storyforge/pkg/migrate"
	"github.com/nainya/storyforge/pkg/progress"
	"github.com/nainya/storyforge/pkg/store"
	"github.com/nainya/storyforge/pkg/validate"
)

var (
	cfgPath  string
	dbPath   string
	logLevel string
	pretty   bool

	cfg config.Config
)

func main() {
	root := &cobra.Command{
		Use:   "storyforge",
		Short: "Hierarchy migration engine for book corpora",
		Long: `StoryForge migrates a flat Book -> Chapter corpus into the
Book -> Story -> Part -> Chapter -> Scene hierarchy, with integrity
validation on both ends and coarse rollback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initialize()
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "Database file path (overrides config)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty-print log output")

	root.AddCommand(migrateCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(rollbackCmd())
	root.AddCommand(seedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initialize() error {
	cfg = config.Default()

	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Flags override the file
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger.InitGlobalLogger(logger.Config{
		Level:  cfg.Logging.Level,
		Pretty: pretty && cfg.Logging.Pretty,
	})

	return nil
}

func openStore() (*store.Store, error) {
	maxConns := cfg.Database.MaxConnections
	if cfg.Migration.MaxConnections > 0 {
		maxConns = cfg.Migration.MaxConnections
	}

	return store.Open(store.Options{
		Path:            cfg.Database.Path,
		MaxConnections:  maxConns,
		UseTransactions: cfg.Migration.UseTransactions,
	})
}

// signalContext returns a context cancelled by SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func migrateCmd() *cobra.Command {
	var (
		snapshotPath string
		withMetrics  bool

		batchSize   int
		dryRun      bool
		concurrency int
		retry       bool
		maxRetries  int
		adaptive    bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the flat corpus into the story hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			// Explicit flags win over the config file
			opts := cfg.Migration
			if cmd.Flags().Changed("batch-size") {
				opts.BatchSize = batchSize
			}
			if cmd.Flags().Changed("dry-run") {
				opts.DryRun = dryRun
			}
			if cmd.Flags().Changed("concurrency") {
				opts.ConcurrentBatches = concurrency
			}
			if cmd.Flags().Changed("retry") {
				opts.RetryFailedBatches = retry
			}
			if cmd.Flags().Changed("max-retries") {
				opts.MaxRetries = maxRetries
			}
			if cmd.Flags().Changed("adaptive") {
				opts.Adaptive.Enabled = adaptive
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			engine := migrate.NewEngine(s)

			if withMetrics || cfg.Metrics.Enabled {
				m := metrics.NewMetrics()
				engine.SetMetrics(m)

				obs := observability.NewServer(cfg.Metrics.Port, logger.GetGlobalLogger())
				go obs.Start()
				defer func() {
					shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
					defer stop()
					obs.Shutdown(shutdownCtx)
				}()
			}

			opts.ProgressFunc = printProgress

			result, err := engine.MigrateToHierarchy(ctx, opts)
			if err != nil {
				if result != nil {
					printResult(result)
				}
				return err
			}

			printResult(result)

			if snapshotPath != "" && engine.Snapshot() != nil {
				if err := engine.Snapshot().Save(snapshotPath); err != nil {
					return err
				}
				fmt.Printf("Snapshot written to %s\n", snapshotPath)
			}

			if !result.Success {
				return fmt.Errorf("migration finished with %d errors", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", migrate.DefaultBatchSize, "Books per batch")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count the work without writing rows")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Batches processed in parallel (0 for sequential)")
	cmd.Flags().BoolVar(&retry, "retry", false, "Retry failed batches")
	cmd.Flags().IntVar(&maxRetries, "max-retries", migrate.DefaultMaxRetries, "Retry attempts per failed batch")
	cmd.Flags().BoolVar(&adaptive, "adaptive", false, "Adapt batch size to observed batch duration")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Write the rollback snapshot to this file")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "Serve Prometheus metrics while migrating")

	return cmd
}

func validateCmd() *cobra.Command {
	var phase string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run integrity validation without migrating",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			v := validate.NewValidator(s)

			var result *validate.ValidationResult
			switch phase {
			case validate.PhasePre:
				result, err = v.PreMigration(ctx)
			case validate.PhasePost:
				result, err = v.PostMigration(ctx)
			default:
				return fmt.Errorf("unknown phase %q, want %q or %q", phase, validate.PhasePre, validate.PhasePost)
			}
			if err != nil {
				return err
			}

			printValidation(result)
			if !result.IsValid {
				return fmt.Errorf("validation found %d errors", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&phase, "phase", validate.PhasePre, "Validation phase: pre or post")
	return cmd
}

func rollbackCmd() *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Delete all hierarchy rows created by a migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if snapshotPath == "" {
				return fmt.Errorf("rollback requires --snapshot (written by migrate)")
			}

			snap, err := migrate.LoadSnapshot(snapshotPath)
			if err != nil {
				return err
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			engine := migrate.NewEngine(s)
			engine.RestoreSnapshot(snap)

			result, err := engine.Rollback(ctx)
			if err != nil {
				return err
			}

			total := result.DeletedStories + result.DeletedParts + result.DeletedChapters +
				result.DeletedScenes + result.DeletedPaths + result.DeletedSearchEntries
			fmt.Printf("Rollback %s: %d rows deleted in %s\n",
				statusWord(result.Success), total, result.Duration.Round(time.Millisecond))

			for _, e := range result.Errors {
				fmt.Printf("  error: %s\n", e)
			}
			if !result.Success {
				return fmt.Errorf("rollback finished with %d errors", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Snapshot file written by migrate")
	return cmd
}

func seedCmd() *cobra.Command {
	var (
		books    int
		chapters int
		words    int
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with a synthetic flat corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := seedCorpus(ctx, s, books, chapters, words); err != nil {
				return err
			}

			fmt.Printf("Seeded %d books with %d chapters each\n", books, chapters)
			return nil
		},
	}

	cmd.Flags().IntVar(&books, "books", 10, "Number of books to create")
	cmd.Flags().IntVar(&chapters, "chapters", 20, "Chapters per book")
	cmd.Flags().IntVar(&words, "words", 500, "Words per chapter")
	return cmd
}

func printProgress(snap progress.Snapshot) {
	if snap.State != progress.StateRunning {
		return
	}

	eta := ""
	if snap.EstimatedRemaining > 0 {
		eta = fmt.Sprintf(", ~%s remaining", snap.EstimatedRemaining.Round(time.Second))
	}

	fmt.Printf("\r[%s] %.1f%% (%d/%d books%s)    ",
		snap.Stage, snap.Percentage, snap.CompletedItems, snap.TotalItems, eta)
}

func printResult(r *migrate.MigrationResult) {
	fmt.Println()
	fmt.Printf("Migration %s in %s\n", statusWord(r.Success), r.Duration.Round(time.Millisecond))
	fmt.Printf("  books migrated:   %d (skipped %d)\n", r.MigratedBooks, r.SkippedBooks)
	fmt.Printf("  chapters:         %d\n", r.MigratedChapters)
	fmt.Printf("  stories/parts:    %d/%d\n", r.CreatedStories, r.CreatedParts)
	fmt.Printf("  scenes:           %d\n", r.CreatedScenes)
	fmt.Printf("  batches:          %d (retried %d)\n", r.BatchesProcessed, r.BatchesRetried)

	if r.RolledBack {
		fmt.Println("  rolled back:      yes")
	}
	for _, e := range r.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}

func printValidation(r *validate.ValidationResult) {
	fmt.Printf("Validation (%s) %s in %s\n",
		r.Phase, statusWord(r.IsValid), r.Duration.Round(time.Millisecond))

	for _, w := range r.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, e := range r.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}

func statusWord(ok bool) string {
	if ok {
		return "succeeded"
	}
	return "failed"
}
