package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schaermu/workflowsync/internal/config"
	"github.com/schaermu/workflowsync/internal/github"
	"github.com/schaermu/workflowsync/internal/logging"
	"github.com/schaermu/workflowsync/internal/report"
	"github.com/schaermu/workflowsync/internal/sync"
	"github.com/schaermu/workflowsync/internal/webhook"
	"github.com/spf13/cobra"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitCancelled  = 130
)

// errRepositoriesFailed makes the process exit non-zero after a run in
// which at least one repository ended in an error
var errRepositoriesFailed = errors.New("one or more repositories failed to sync")

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Run flags, applied over the config file when set
	org                string
	topic              string
	sourceRepo         string
	files              []string
	dryRun             bool
	parallel           bool
	maxWorkers         int
	timeout            time.Duration
	autoMerge          bool
	mergeMethod        string
	prune              bool
	apiURL             string
	mutationsPerSecond float64
	metricsFile        string
)

func main() {
	os.Exit(exitCode(rootCmd.Execute()))
}

var rootCmd = &cobra.Command{
	Use:   "workflowsync",
	Short: "Synchronize GitHub Actions workflows across an organization",
	Long: `workflowsync copies the GitHub Actions workflows of a source repository to every
repository of an organization tagged with a topic.

Each target with differing workflows gets a sync branch and a pull request. It can
run as a oneshot sync (e.g. from a scheduled job) or as a long-running webhook
daemon that responds to pushes on the source repository.

The GitHub token is read from the GITHUB_TOKEN environment variable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Perform a one-time sync from the source repository to all targets",
	Long: `Sync reads the workflows of the source repository, finds every repository of the
organization carrying the topic and opens a pull request on each target whose
workflows differ.

Exit codes: 0 all repositories succeeded, 1 at least one repository failed or the
run aborted, 2 invalid input, 130 interrupted.`,
	RunE: runSync,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Serve starts a long-running HTTP server that listens for GitHub push webhooks
and runs a sync whenever the source repository is updated.

This mode requires serve.github_webhook_secret_file in the config file.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("workflowsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (optional, flags override its values)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	pf.StringVar(&org, "org", "", "GitHub organization")
	pf.StringVar(&topic, "topic", "", "topic selecting the target repositories")
	pf.StringVar(&sourceRepo, "source-repo", "", "repository holding the reference workflows")
	pf.StringSliceVar(&files, "files", nil, "only sync these workflow files")
	pf.BoolVar(&parallel, "parallel", false, "process repositories in parallel")
	pf.IntVar(&maxWorkers, "max-workers", config.DefaultMaxWorkers, "number of parallel workers")
	pf.DurationVar(&timeout, "timeout", config.DefaultTimeout, "timeout for a single API call")
	pf.BoolVar(&autoMerge, "auto-merge", false, "merge created pull requests")
	pf.StringVar(&mergeMethod, "merge-method", string(config.MergeSquash), "merge method for auto-merge (merge, squash, rebase)")
	pf.BoolVar(&prune, "prune", false, "remove workflows that do not exist in the source repository")
	pf.StringVar(&apiURL, "api-url", "", "GitHub API base URL (GitHub Enterprise)")
	pf.Float64Var(&mutationsPerSecond, "mutations-per-second", config.DefaultMutationsPerSecond, "pace of content-creating API calls (0 disables pacing)")
	pf.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after a run")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	ctx = logging.WithRunID(ctx, logging.NewRunID())

	engine, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	outcomes, runErr := engine.Run(ctx)

	if cfg.MetricsFile != "" {
		if err := engine.Metrics().WriteTextfile(cfg.MetricsFile); err != nil {
			logger.WarnContext(ctx, "failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	summary := report.Summarize(outcomes)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.WarnContext(ctx, "operation cancelled by user", "processed", summary.Total())
			if summary.Total() > 0 {
				report.Render(cmd.OutOrStdout(), summary)
			}
			return runErr
		}
		logger.ErrorContext(ctx, "sync failed", "error", runErr)
		return runErr
	}

	report.Render(cmd.OutOrStdout(), summary)

	if summary.HasErrors() {
		return errRepositoriesFailed
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}
	if err := cfg.ValidateServe(); err != nil {
		logger.Error("invalid serve configuration", "error", err)
		return err
	}

	engine, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server, err := webhook.NewServer(cfg, engine, engine.Metrics().Registry(), logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	return server.Start(ctx)
}

func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sync.Engine, error) {
	client, err := github.NewClient(ctx, github.Options{
		Token:              cfg.Token,
		BaseURL:            cfg.API.BaseURL,
		Timeout:            cfg.Timeout,
		MutationsPerSecond: cfg.API.MutationRate(),
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return sync.NewEngine(cfg, client, logger), nil
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(logging.NewContextHandler(handler))
}

// loadConfig builds the run configuration from the optional config file,
// the command-line flags and the environment, and validates it
func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, error) {
	cfg := &config.Config{}
	if cfgFile != "" {
		logger.Info("loading configuration", "path", cfgFile)

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// defaults first so that an explicit zero flag reaches validation
	cfg.ApplyDefaults()
	applyFlags(cmd, cfg)
	cfg.LoadToken()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"org", cfg.Org,
		"topic", cfg.Topic,
		"source", cfg.SourceFullName(),
		"files", cfg.Files,
		"parallel", cfg.Parallel,
		"max_workers", cfg.MaxWorkers,
		"prune", cfg.PruneEnabled(),
		"auto_merge", cfg.Merge.Auto)

	return cfg, nil
}

// applyFlags copies every flag the user set explicitly onto cfg
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("org") {
		cfg.Org = org
	}
	if changed("topic") {
		cfg.Topic = topic
	}
	if changed("source-repo") {
		cfg.SourceRepo = sourceRepo
	}
	if changed("files") {
		cfg.Files = files
	}
	if changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if changed("parallel") {
		cfg.Parallel = parallel
	}
	if changed("max-workers") {
		cfg.MaxWorkers = maxWorkers
	}
	if changed("timeout") {
		cfg.Timeout = timeout
	}
	if changed("auto-merge") {
		cfg.Merge.Auto = autoMerge
	}
	if changed("merge-method") {
		cfg.Merge.Method = config.MergeMethod(mergeMethod)
	}
	if changed("prune") {
		cfg.Prune = prune
	}
	if changed("api-url") {
		cfg.API.BaseURL = apiURL
	}
	if changed("mutations-per-second") {
		rate := mutationsPerSecond
		cfg.API.MutationsPerSecond = &rate
	}
	if changed("metrics-file") {
		cfg.MetricsFile = metricsFile
	}
}

// exitCode maps the error returned by a command to the process exit code
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var validationErr *config.ValidationError
	switch {
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.As(err, &validationErr):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitValidation
	case errors.Is(err, errRepositoriesFailed):
		return exitFailure
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
