package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	ilogger "jobswarm/internal/logger"
	"jobswarm/internal/pool"
)

const DefaultLogDir = "swarmlog"

// syncWriter serializes progress lines written from worker goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// RunMultiShell runs every command once through the shell and returns one
// result per command in submission order. Commands without a name in
// opts.Names are named by their 1-based position.
func RunMultiShell(ctx context.Context, commands []string, opts ShellOptions) []pool.Result[Output] {
	specs := make([]JobSpec, len(commands))
	for i, c := range commands {
		specs[i] = JobSpec{Command: c}
		if i < len(opts.Names) {
			specs[i].Name = opts.Names[i]
		}
	}
	return RunJobs(ctx, specs, opts)
}

// RunJobs runs specs on a pool sized by opts.Workers.ResolveShell. Every
// job runs exactly once with no timeout; failures are reported per job in
// Result.Err.
func RunJobs(ctx context.Context, specs []JobSpec, opts ShellOptions) []pool.Result[Output] {
	if len(specs) == 0 {
		return []pool.Result[Output]{}
	}

	var progress io.Writer = os.Stdout
	if opts.Progress != nil {
		progress = opts.Progress
	}
	progress = &syncWriter{w: progress}

	logDir := opts.LogDir
	if strings.TrimSpace(logDir) == "" {
		logDir = DefaultLogDir
	}

	workers := opts.Workers.ResolveShell(len(specs))
	jobs := make([]pool.Job[Output], len(specs))
	seen := make(map[string]int, len(specs))
	for i, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		fmt.Fprintf(progress, "Submit job %s\n", name)
		// names key the swarm log files, so a repeat would share them
		if prev, ok := seen[name]; ok {
			jobs[i] = &rejectedJob{
				label:    name,
				err:      fmt.Errorf("duplicate job name %q (first used by job #%d)", name, prev),
				progress: progress,
			}
			continue
		}
		seen[name] = i + 1
		jobs[i] = &ShellJob{
			Label:    name,
			Command:  spec.Command,
			WorkDir:  spec.WorkDir,
			Shell:    opts.Shell,
			Log:      opts.Log,
			LogDir:   logDir,
			Progress: progress,
		}
	}

	if len(specs) == 1 {
		fmt.Fprintln(progress, "1 job is submitted")
	} else if workers == 1 {
		fmt.Fprintf(progress, "%d jobs are submitted (Each job is executed sequentially)\n", len(specs))
	} else {
		fmt.Fprintf(progress, "%d jobs are submitted (%d jobs are executed in parallel)\n", len(specs), workers)
	}
	ilogger.LogInfo("shell batch submitted", "jobs", len(specs), "workers", workers, "log", opts.Log, "shell", opts.Shell)

	return pool.RunAll(ctx, jobs, workers, opts.Observer)
}

// rejectedJob fails without starting a process.
type rejectedJob struct {
	label    string
	err      error
	progress io.Writer
}

func (j *rejectedJob) Name() string { return j.label }

func (j *rejectedJob) Run(context.Context) (Output, error) {
	fmt.Fprintf(j.progress, "Error %s: %v\n", j.label, j.err)
	ilogger.LogError("job rejected", "job", j.label, "error", j.err)
	return Output{}, j.err
}
