package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nytimes/s3yum/internal/config"
	"github.com/nytimes/s3yum/internal/confirm"
	"github.com/nytimes/s3yum/internal/createrepo"
	"github.com/nytimes/s3yum/internal/store"
	"github.com/nytimes/s3yum/internal/sync"
	"github.com/nytimes/s3yum/internal/workflow"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	verbose   int
	dryRun    bool
	overrides config.Overrides

	// Action flags
	output        string
	workingDir    string
	remove        []string
	forceDownload bool
	forceUpload   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "s3yum",
	Short: "Manage yum repositories stored in S3",
	Long: `s3yum maintains a yum repository inside an S3 bucket.

Packages are staged in a local working directory, indexed with createrepo and
published back to the bucket. Only files whose md5 differs from the remote copy
are transferred.`,
	SilenceUsage: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: actionHelp(config.ActionList),
	Args:  cobra.NoArgs,
	RunE:  runAction(config.ActionList),
}

var createCmd = &cobra.Command{
	Use:   "create [RPM...]",
	Short: actionHelp(config.ActionCreate),
	Long: `Create stages the given packages, generates fresh metadata for them and
publishes the result. Packages already in the repo are kept unless they match
a --remove pattern.`,
	RunE: runAction(config.ActionCreate),
}

var updateCmd = &cobra.Command{
	Use:   "update [RPM...]",
	Short: actionHelp(config.ActionUpdate),
	Long: `Update downloads the current repo, adds the given packages, drops the
packages matching --remove and publishes regenerated metadata.`,
	RunE: runAction(config.ActionUpdate),
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: actionHelp(config.ActionGet),
	Args:  cobra.NoArgs,
	RunE:  runAction(config.ActionGet),
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: actionHelp(config.ActionDelete),
	Long: `Delete removes every metadata file and package under the repo path after
interactive confirmation.`,
	Args: cobra.NoArgs,
	RunE: runAction(config.ActionDelete),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("s3yum %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/s3yum/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	pf.CountVarP(&verbose, "verbose", "v", "more output; repeat for more")
	pf.BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	pf.StringVarP(&overrides.Bucket, "bucket", "b", "", "S3 bucket holding the repo")
	pf.StringVarP(&overrides.Path, "path", "p", "", "repo path within the bucket (default \"dev\")")
	pf.StringVar(&overrides.Region, "region", "", "AWS region")
	pf.StringVar(&overrides.Endpoint, "endpoint", "", "custom S3 endpoint URL")
	pf.StringVar(&overrides.RoleARN, "assume-role", "", "ARN of an IAM role to assume")
	pf.StringVar(&overrides.RoleSessionName, "role-session-name", "", "session name for --assume-role")
	pf.StringVar(&overrides.RoleExternalID, "role-external-id", "", "external id for --assume-role")

	// Publishing flags
	for _, cmd := range []*cobra.Command{createCmd, updateCmd} {
		cmd.Flags().StringVarP(&workingDir, "working-dir", "w", "", "staging directory (default is a temporary directory)")
		cmd.Flags().StringArrayVarP(&remove, "remove", "r", nil, "glob of package keys to remove; repeatable")
		cmd.Flags().BoolVar(&forceUpload, "force-upload", false, "upload packages even when unchanged")
	}
	for _, cmd := range []*cobra.Command{getCmd, updateCmd} {
		cmd.Flags().BoolVar(&forceDownload, "force-download", false, "download packages even when unchanged")
	}
	getCmd.Flags().StringVarP(&output, "output", "o", "", "destination directory")

	// Add commands
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(versionCmd)
}

func actionHelp(action config.Action) string {
	for _, a := range config.Actions {
		if a.Action == action {
			return a.Help
		}
	}
	return ""
}

func runAction(action config.Action) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		// Setup logger
		logger := setupLogger()

		// Load configuration
		cfg, err := loadConfig(logger)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		req := buildRequest(action, args)
		if err := workflow.Validate(cfg, req); err != nil {
			return usageFailure(cmd, err)
		}

		// Create dependencies
		st, err := store.NewS3Store(ctx, store.S3Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			PathStyle:       cfg.PathStyle,
			MaxRetries:      cfg.MaxRetries,
			RoleARN:         cfg.AssumeRole.RoleARN,
			RoleSessionName: cfg.AssumeRole.SessionName,
			RoleExternalID:  cfg.AssumeRole.ExternalID,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to S3", "error", err)
			return err
		}
		generator := createrepo.NewShellGenerator(cfg.Createrepo, logger)

		opts := workflow.Options{
			Out:     os.Stdout,
			Confirm: confirm.NewPrompt(os.Stdin, os.Stdout),
		}
		if verbose > 0 {
			opts.Progress = progressPrinter(os.Stderr)
		}

		engine := workflow.NewEngine(cfg, st, generator, logger, opts)
		if _, err := engine.Run(ctx, req); err != nil {
			switch workflow.KindOf(err) {
			case workflow.KindUsage:
				return usageFailure(cmd, err)
			case workflow.KindAborted:
				return err
			}
			logger.Error("operation failed", "action", string(action), "error", err)
			return err
		}
		return nil
	}
}

func buildRequest(action config.Action, args []string) workflow.Request {
	return workflow.Request{
		Action:        action,
		Artifacts:     args,
		Output:        output,
		WorkingDir:    workingDir,
		Remove:        remove,
		ForceDownload: forceDownload,
		ForceUpload:   forceUpload,
		DryRun:        dryRun,
	}
}

// usageFailure shows the command usage for invocation mistakes; cobra
// prints err itself.
func usageFailure(cmd *cobra.Command, err error) error {
	var usage *config.UsageError
	if errors.As(err, &usage) {
		_ = cmd.Usage()
	}
	return err
}

func setupLogger() *slog.Logger {
	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: levelFor(logLevel, verbose)}

	// stdout carries listings and prompts
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// levelFor parses name and lowers it one step per -v, down to debug.
func levelFor(name string, verbosity int) slog.Level {
	var level slog.Level
	switch name {
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

	level -= slog.Level(4 * verbosity)
	if level < slog.LevelDebug {
		level = slog.LevelDebug
	}
	return level
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// An explicit --config must exist; the default location is optional
	load := config.Load
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/s3yum/config.yaml", home)
		load = config.LoadOptional
	}

	logger.Debug("loading configuration", "path", configPath)

	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	cfg = cfg.WithOverrides(overrides)

	logger.Debug("configuration loaded",
		"bucket", cfg.Bucket,
		"path", cfg.Path,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
		"transfers", cfg.Transfers,
		"createrepo", cfg.Createrepo)

	return cfg, nil
}

// progressPrinter renders one updating line per transfer.
func progressPrinter(w io.Writer) sync.ProgressFactory {
	return func(name string) store.ProgressFunc {
		return func(received, total int64) {
			_, _ = fmt.Fprintf(w, "\r%s: %d/%db", name, received, total)
			if received >= total {
				_, _ = fmt.Fprintln(w)
			}
		}
	}
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
