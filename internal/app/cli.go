package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	config "jobswarm/internal/config"
	ilogger "jobswarm/internal/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "0.3.0"

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

type rootOptions struct {
	ConfigFile string
	LogLevel   string
}

var (
	exitFn                     = os.Exit
	stdinReader      io.Reader = os.Stdin
	stdout           io.Writer = os.Stdout
	stderr           io.Writer = os.Stderr
	cleanupOldLogsFn           = ilogger.CleanupOldLogs
)

// Run is the program entrypoint for cmd/jobswarm/main.go.
func Run() {
	exitFn(execute(os.Args[1:]))
}

func execute(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	name := ilogger.AppName
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           name,
		Short:         "Run batches of shell commands on a bounded worker pool",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyLogLevel(opts.LogLevel)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	addPersistentFlags(cmd.PersistentFlags(), opts)
	cmd.AddCommand(newRunCommand(opts), newLedgerCommand(), newVersionCommand(name), newCleanupCommand())

	return cmd
}

func addPersistentFlags(fs *pflag.FlagSet, opts *rootOptions) {
	fs.StringVar(&opts.ConfigFile, "config", "", "Config file path (default: $HOME/.jobswarm/config.*)")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Runner log level (debug, info, warn, error)")
}

func applyLogLevel(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "info"
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", raw, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print version and exit",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(stdout, "%s version %s\n", name, version)
			return nil
		},
	}
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "cleanup",
		Short:         "Remove runner logs left behind by exited processes",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code := runCleanupMode()
			if code == 0 {
				return nil
			}
			return exitError{code: code}
		},
	}
}

func runCleanupMode() int {
	stats, err := cleanupOldLogsFn()
	fmt.Fprintln(stdout, "Cleanup completed")
	fmt.Fprintf(stdout, "Files scanned: %d\n", stats.Scanned)
	fmt.Fprintf(stdout, "Files deleted: %d\n", stats.Deleted)
	for _, f := range stats.DeletedFiles {
		fmt.Fprintf(stdout, "  - %s\n", f)
	}
	fmt.Fprintf(stdout, "Files kept: %d\n", stats.Kept)
	if stats.Errors > 0 {
		fmt.Fprintf(stdout, "Deletion errors: %d\n", stats.Errors)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: cleanup failed: %v\n", err)
		return 1
	}
	return 0
}

// scheduleStartupCleanup removes stale runner logs unless
// JOBSWARM_SKIP_CLEANUP is set.
func scheduleStartupCleanup() {
	if config.EnvFlagEnabled(config.EnvPrefix + "_SKIP_CLEANUP") {
		return
	}
	stats, err := cleanupOldLogsFn()
	if err != nil {
		logWarn("startup cleanup failed", "error", err)
		return
	}
	if stats.Deleted > 0 {
		logInfo("startup cleanup removed stale logs", "deleted", stats.Deleted, "kept", stats.Kept)
	}
}

func runWithLoggerAndCleanup(fn func() int) (exitCode int) {
	logger, err := NewLogger()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: failed to initialize logger: %v\n", err)
		return 1
	}
	setLogger(logger)

	defer func() {
		logger := activeLogger()
		if logger != nil {
			logger.Flush()
		}
		if err := closeLogger(); err != nil {
			fmt.Fprintf(stderr, "ERROR: failed to close logger: %v\n", err)
		}
		if logger == nil {
			return
		}

		if exitCode != 0 {
			if entries := logger.ExtractRecentErrors(10); len(entries) > 0 {
				fmt.Fprintln(stderr, "\n=== Recent Errors ===")
				for _, entry := range entries {
					fmt.Fprintln(stderr, entry)
				}
				fmt.Fprintf(stderr, "Log file: %s\n", logger.Path())
				return
			}
		}
		_ = logger.RemoveLogFile()
	}()

	scheduleStartupCleanup()

	return fn()
}
