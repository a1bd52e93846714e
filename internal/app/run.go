package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	config "jobswarm/internal/config"
	"jobswarm/internal/executor"
	"jobswarm/internal/ledger"
	"jobswarm/internal/metrics"
	"jobswarm/internal/parser"
	"jobswarm/internal/pool"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type runOptions struct {
	Workers     string
	Names       []string
	Commands    []string
	Log         bool
	NoLog       bool
	LogDir      string
	Shell       string
	Format      string
	WorkDir     string
	Profile     string
	Ledger      string
	SkipDone    bool
	MetricsFile string
	JSONOutput  bool
	FullOutput  bool
}

var runJobsFn = executor.RunJobs

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:           "run [flags] [swarmfile|-]",
		Short:         "Run a swarm file or --command list on a worker pool",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode := runWithLoggerAndCleanup(func() int {
				v, err := config.NewViper(root.ConfigFile)
				if err != nil {
					logError("failed to load config", "error", err)
					fmt.Fprintf(stderr, "ERROR: %v\n", err)
					return 1
				}

				cfg, err := buildRunConfig(cmd.Flags(), args, opts, v)
				if err != nil {
					logError("invalid run configuration", "error", err)
					fmt.Fprintf(stderr, "ERROR: %v\n", err)
					return 1
				}
				return runBatch(cfg)
			})
			if exitCode == 0 {
				return nil
			}
			return exitError{code: exitCode}
		},
	}
	addRunFlags(cmd.Flags(), opts)
	return cmd
}

func addRunFlags(fs *pflag.FlagSet, opts *runOptions) {
	fs.StringVarP(&opts.Workers, "workers", "j", "", "Worker directive: all, half (or 0), a fraction like 0.5, a negative offset, or a count")
	fs.StringSliceVar(&opts.Names, "names", nil, "Comma-separated job names, by position")
	fs.StringArrayVarP(&opts.Commands, "command", "c", nil, "Command to run (repeatable); replaces the swarm file")
	fs.BoolVar(&opts.Log, "log", false, "Write each job's stdout/stderr to swarm log files")
	fs.BoolVar(&opts.NoLog, "no-log", false, "Capture job output instead of writing swarm log files")
	fs.StringVar(&opts.LogDir, "log-dir", "", "Directory for swarm log files (default: swarmlog)")
	fs.StringVar(&opts.Shell, "shell", "", "Shell interpreter (bash, sh, zsh)")
	fs.StringVar(&opts.Format, "format", executor.FormatAuto, "Swarm file format (auto, lines, blocks, yaml, jsonl)")
	fs.StringVar(&opts.WorkDir, "workdir", "", "Working directory for jobs that do not set one")
	fs.StringVar(&opts.Profile, "profile", "", "Profile from $HOME/.jobswarm/profiles.json")
	fs.StringVar(&opts.Ledger, "ledger", "", "SQLite ledger recording every batch and job run")
	fs.BoolVar(&opts.SkipDone, "skip-done", false, "Skip commands the ledger records as succeeded")
	fs.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the batch")
	fs.BoolVar(&opts.JSONOutput, "json", false, "Print one JSON result per line instead of the summary")
	fs.BoolVar(&opts.FullOutput, "full-output", false, "Include captured job output in the summary")
}

// pick returns the flag value when the flag was set, else the viper value,
// else fallback.
func pick(fs *pflag.FlagSet, name, flagVal string, v *viper.Viper, fallback string) string {
	if fs.Changed(name) {
		return strings.TrimSpace(flagVal)
	}
	if val := strings.TrimSpace(v.GetString(name)); val != "" {
		return val
	}
	return fallback
}

func pickBool(fs *pflag.FlagSet, name string, flagVal bool, v *viper.Viper, fallback bool) bool {
	if fs.Changed(name) {
		return flagVal
	}
	if v.IsSet(name) {
		return v.GetBool(name)
	}
	return fallback
}

func buildRunConfig(fs *pflag.FlagSet, args []string, opts *runOptions, v *viper.Viper) (*config.Config, error) {
	profileName := pick(fs, "profile", opts.Profile, v, "")
	if fs.Changed("profile") && profileName == "" {
		return nil, fmt.Errorf("--profile flag requires a value")
	}
	profile, err := config.ResolveProfile(profileName)
	if err != nil {
		return nil, fmt.Errorf("--profile: %w", err)
	}

	cfg := &config.Config{
		Profile:     profileName,
		Workers:     pick(fs, "workers", opts.Workers, v, profile.Workers),
		Shell:       pick(fs, "shell", opts.Shell, v, profile.Shell),
		LogDir:      pick(fs, "log-dir", opts.LogDir, v, profile.LogDir),
		Format:      pick(fs, "format", opts.Format, v, executor.FormatAuto),
		WorkDir:     pick(fs, "workdir", opts.WorkDir, v, ""),
		LedgerPath:  pick(fs, "ledger", opts.Ledger, v, ""),
		MetricsFile: pick(fs, "metrics-file", opts.MetricsFile, v, ""),
		SkipDone:    pickBool(fs, "skip-done", opts.SkipDone, v, false),
		JSONOutput:  pickBool(fs, "json", opts.JSONOutput, v, false),
		FullOutput:  pickBool(fs, "full-output", opts.FullOutput, v, false),
		Names:       opts.Names,
		Commands:    opts.Commands,
	}

	switch {
	case fs.Changed("log") && fs.Changed("no-log"):
		return nil, fmt.Errorf("--log and --no-log are mutually exclusive")
	case fs.Changed("no-log"):
		cfg.Log = !opts.NoLog
	default:
		cfg.Log = pickBool(fs, "log", opts.Log, v, profile.LogEnabled())
	}

	if _, err := pool.ParseWorkers(cfg.Workers); err != nil {
		return nil, fmt.Errorf("--workers: %w", err)
	}
	if cfg.WorkDir == "-" {
		return nil, fmt.Errorf("invalid workdir: '-' is not a valid directory path")
	}
	if cfg.SkipDone && cfg.LedgerPath == "" {
		return nil, fmt.Errorf("--skip-done requires --ledger")
	}

	switch {
	case len(cfg.Commands) > 0 && len(args) > 0:
		return nil, fmt.Errorf("--command cannot be combined with a swarm file")
	case len(args) > 0:
		cfg.Source = args[0]
	case len(cfg.Commands) == 0:
		return nil, fmt.Errorf("no jobs: pass a swarm file, '-' for stdin, or --command")
	}
	return cfg, nil
}

func loadSpecs(cfg *config.Config) ([]executor.JobSpec, error) {
	var specs []executor.JobSpec
	if len(cfg.Commands) > 0 {
		specs = make([]executor.JobSpec, len(cfg.Commands))
		for i, c := range cfg.Commands {
			specs[i] = executor.JobSpec{Command: c}
		}
	} else {
		var (
			data []byte
			err  error
		)
		if cfg.Source == "-" {
			data, err = io.ReadAll(stdinReader)
		} else {
			data, err = os.ReadFile(filepath.Clean(cfg.Source))
		}
		if err != nil {
			return nil, fmt.Errorf("read swarm file: %w", err)
		}
		specs, err = executor.ParseManifest(data, cfg.Format, cfg.Source)
		if err != nil {
			return nil, err
		}
	}

	specs, err := executor.ApplyNames(specs, cfg.Names)
	if err != nil {
		return nil, err
	}
	if cfg.WorkDir != "" {
		for i := range specs {
			if specs[i].WorkDir == "" {
				specs[i].WorkDir = cfg.WorkDir
			}
		}
	}
	return specs, nil
}

func runBatch(cfg *config.Config) int {
	specs, err := loadSpecs(cfg)
	if err != nil {
		logError("failed to load jobs", "error", err)
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	workers, _ := pool.ParseWorkers(cfg.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var led *ledger.Ledger
	if cfg.LedgerPath != "" {
		led, err = ledger.Open(cfg.LedgerPath)
		if err != nil {
			logError("failed to open ledger", "path", cfg.LedgerPath, "error", err)
			fmt.Fprintf(stderr, "ERROR: open ledger: %v\n", err)
			return 1
		}
		defer led.Close()

		if cfg.SkipDone {
			specs, err = skipSucceeded(ctx, led, specs)
			if err != nil {
				fmt.Fprintf(stderr, "ERROR: %v\n", err)
				return 1
			}
			if len(specs) == 0 {
				fmt.Fprintln(stdout, "All jobs already succeeded; nothing to do")
				return 0
			}
		}
	}

	progress := stdout
	if cfg.JSONOutput {
		progress = stderr
	}
	collector := metrics.New()
	opts := executor.ShellOptions{
		Workers:  workers,
		Log:      cfg.Log,
		LogDir:   cfg.LogDir,
		Shell:    cfg.Shell,
		Progress: progress,
		Observer: collector,
	}

	var batchID string
	if led != nil {
		batchID, err = led.BeginBatch(ctx, ledger.Batch{
			Source:  cfg.Source,
			Jobs:    len(specs),
			Workers: workers.ResolveShell(len(specs)),
			Shell:   cfg.Shell,
		})
		if err != nil {
			logWarn("ledger batch not recorded", "error", err)
			led = nil
		} else {
			fmt.Fprintf(progress, "Ledger batch %s\n", batchID)
		}
	}

	logInfo("batch starting", "jobs", len(specs), "workers", workers.String(), "log", cfg.Log, "source", cfg.Source)
	start := time.Now()
	results := runJobsFn(ctx, specs, opts)
	logInfo("batch finished", "elapsed", time.Since(start).String())

	exitCode := 0
	failed := 0
	for _, r := range results {
		if code := executor.ExitCode(r); code != 0 {
			exitCode = code
			failed++
		}
	}

	if led != nil {
		recordResults(ctx, led, batchID, specs, results, failed)
	}
	if cfg.MetricsFile != "" {
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			logWarn("failed to write metrics textfile", "path", cfg.MetricsFile, "error", err)
			fmt.Fprintf(stderr, "WARN: write metrics: %v\n", err)
		}
	}

	if cfg.JSONOutput {
		if err := parser.WriteJSONLines(stdout, executor.Records(results, specs)); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintln(stdout, executor.GenerateFinalOutput(results, !cfg.FullOutput))
	}
	return exitCode
}

func skipSucceeded(ctx context.Context, led *ledger.Ledger, specs []executor.JobSpec) ([]executor.JobSpec, error) {
	commands := make([]string, len(specs))
	for i, s := range specs {
		commands[i] = s.Command
	}
	done, err := led.Succeeded(ctx, commands)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}

	remaining := specs[:0:0]
	for _, s := range specs {
		if done[s.Command] {
			fmt.Fprintf(stdout, "Skip job %s (already succeeded)\n", s.Name)
			continue
		}
		remaining = append(remaining, s)
	}
	return remaining, nil
}

func recordResults(ctx context.Context, led *ledger.Ledger, batchID string, specs []executor.JobSpec, results []pool.Result[executor.Output], failed int) {
	// the batch context may be cancelled; recording still has to happen
	ctx = context.WithoutCancel(ctx)
	for i, r := range results {
		run := ledger.JobRun{
			BatchID:  batchID,
			Index:    r.Index,
			Name:     r.Name,
			OK:       r.Ok(),
			ExitCode: executor.ExitCode(r),
			Elapsed:  r.Elapsed,
			PID:      r.Value.PID,
		}
		if i < len(specs) {
			run.Command = specs[i].Command
			run.WorkDir = specs[i].WorkDir
		}
		if r.Err != nil {
			run.Error = r.Err.Error()
		}
		if err := led.RecordJob(ctx, run); err != nil {
			logWarn("ledger job not recorded", "index", r.Index, "error", err)
		}
	}
	if err := led.FinishBatch(ctx, batchID, failed); err != nil {
		logWarn("ledger batch not finished", "error", err)
	}
}
