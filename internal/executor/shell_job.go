package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	ilogger "jobswarm/internal/logger"
	"jobswarm/internal/shell"
)

var (
	forceKillDelay atomic.Int32 // seconds between SIGTERM and kill

	commandContext = exec.CommandContext
	selectShellFn  = shell.Select
	resolveShellFn = shell.Resolve
	getpidFn       = os.Getpid
)

func init() {
	forceKillDelay.Store(5)
}

// ShellJob runs one command line through a shell interpreter.
type ShellJob struct {
	Label   string
	Command string
	WorkDir string
	Shell   string
	Log     bool
	LogDir  string
	// Progress receives the "Error <cmd>: <err>" line of a failed job.
	Progress io.Writer
}

func (j *ShellJob) Name() string { return j.Label }

func (j *ShellJob) Run(ctx context.Context) (Output, error) {
	out, err := j.run(ctx)
	if err != nil {
		if j.Progress != nil {
			fmt.Fprintf(j.Progress, "Error %s: %v\n", j.Command, err)
		}
		ilogger.LogError("job failed", "job", j.Label, "command", j.Command, "error", err)
	}
	return out, err
}

func (j *ShellJob) run(ctx context.Context) (Output, error) {
	var out Output

	in, err := selectShellFn(j.Shell)
	if err != nil {
		return out, err
	}
	path, err := resolveShellFn(in)
	if err != nil {
		return out, err
	}

	cmd := commandContext(ctx, path, in.BuildArgs(j.Command)...)
	cmd.Dir = j.WorkDir
	cmd.Cancel = func() error {
		return sendTermSignal(cmd.Process)
	}
	cmd.WaitDelay = time.Duration(forceKillDelay.Load()) * time.Second

	tail := &tailBuffer{limit: stderrTailBytes}
	var stdout bytes.Buffer
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	if j.Log {
		stdoutPath, stderrPath, err := swarmLogPaths(j.LogDir, j.Label)
		if err != nil {
			return out, err
		}
		fo, err := os.Create(stdoutPath)
		if err != nil {
			return out, fmt.Errorf("create stdout log: %w", err)
		}
		closers = append(closers, fo)
		fe, err := os.Create(stderrPath)
		if err != nil {
			return out, fmt.Errorf("create stderr log: %w", err)
		}
		closers = append(closers, fe)

		cmd.Stdout = fo
		cmd.Stderr = io.MultiWriter(fe, tail)
		out.StdoutLog, out.StderrLog = stdoutPath, stderrPath
	} else {
		lines := newJobStderr(j.Label, stderrLogLineLimit)
		defer lines.Flush()
		cmd.Stdout = &stdout
		cmd.Stderr = io.MultiWriter(tail, lines)
	}

	ilogger.LogDebug("starting job", "job", j.Label, "shell", in.Name(), "workdir", j.WorkDir)
	if err := cmd.Start(); err != nil {
		return out, fmt.Errorf("start %s: %w", in.Name(), err)
	}
	out.PID = cmd.Process.Pid

	waitErr := cmd.Wait()
	out.Stdout = stdout.String()
	out.stderrTail = tail.String()

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.ExitCode = exitCodeOf(waitErr)
			return out, fmt.Errorf("job %s interrupted: %w", j.Label, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			out.ExitCode = exitCodeOf(waitErr)
			return out, &ExitError{Command: j.Command, Code: out.ExitCode, Stderr: out.stderrTail}
		}
		return out, fmt.Errorf("wait %s: %w", in.Name(), waitErr)
	}
	return out, nil
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}

// swarmLogPaths returns <dir>/<name>_<pid>_swarm.{o,e}, creating dir when
// missing.
func swarmLogPaths(dir, name string) (stdoutPath, stderrPath string, err error) {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultLogDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create log dir: %w", err)
	}
	base := fmt.Sprintf("%s_%d_swarm", ilogger.SanitizeLogSuffix(name), getpidFn())
	return filepath.Join(dir, base+".o"), filepath.Join(dir, base+".e"), nil
}
