package executor

import (
	"fmt"
	"io"

	"jobswarm/internal/pool"
)

// JobSpec describes one shell job parsed from a manifest or flags.
type JobSpec struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Command string `json:"command" yaml:"command"`
	WorkDir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`
}

// Output is the value of a finished shell job. With logging enabled Stdout
// is empty and the paths of the swarm log files are set instead.
type Output struct {
	Stdout    string `json:"stdout,omitempty"`
	ExitCode  int    `json:"exit_code"`
	StdoutLog string `json:"stdout_log,omitempty"`
	StderrLog string `json:"stderr_log,omitempty"`
	PID       int    `json:"pid,omitempty"`
	// stderr tail kept for the final report
	stderrTail string
}

// ShellOptions configures RunMultiShell and RunJobs.
type ShellOptions struct {
	Names    []string
	Workers  pool.Workers
	Log      bool
	LogDir   string
	Shell    string
	Progress io.Writer
	Observer pool.Observer
}

// ExitError is the failure of a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}
