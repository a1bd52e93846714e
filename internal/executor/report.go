package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"jobswarm/internal/pool"
	"jobswarm/internal/utils"
)

const errorDetailMaxLen = 200

// Record is the JSON form of one shell job result.
type Record struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Command   string `json:"command,omitempty"`
	OK        bool   `json:"ok"`
	ExitCode  int    `json:"exit_code"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
	PID       int    `json:"pid,omitempty"`
	Stdout    string `json:"stdout,omitempty"`
	StdoutLog string `json:"stdout_log,omitempty"`
	StderrLog string `json:"stderr_log,omitempty"`
}

// Records converts results to their JSON form. specs supplies the commands
// and may be shorter than results.
func Records(results []pool.Result[Output], specs []JobSpec) []Record {
	out := make([]Record, len(results))
	for i, r := range results {
		rec := Record{
			Index:     r.Index,
			Name:      r.Name,
			OK:        r.Ok(),
			ExitCode:  ExitCode(r),
			ElapsedMS: r.Elapsed.Milliseconds(),
			PID:       r.Value.PID,
			Stdout:    r.Value.Stdout,
			StdoutLog: r.Value.StdoutLog,
			StderrLog: r.Value.StderrLog,
		}
		if i < len(specs) {
			rec.Command = specs[i].Command
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		out[i] = rec
	}
	return out
}

// ExitCode maps a result to a process exit status: 0 on success, the
// command's status for *ExitError, 1 for anything else.
func ExitCode(r pool.Result[Output]) int {
	if r.Err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(r.Err, &exitErr) && exitErr.Code != 0 {
		return exitErr.Code
	}
	return 1
}

// GenerateFinalOutput renders the batch report. With summaryOnly the
// captured stdout of successful jobs is omitted.
func GenerateFinalOutput(results []pool.Result[Output], summaryOnly bool) string {
	var sb strings.Builder

	failed := 0
	var total time.Duration
	for _, r := range results {
		if !r.Ok() {
			failed++
		}
		total += r.Elapsed
	}

	sb.WriteString("=== Batch Summary ===\n")
	fmt.Fprintf(&sb, "Total: %d %s | Success: %d | Failed: %d | Job time: %s\n",
		len(results), utils.Plural(len(results), "job", "jobs"), len(results)-failed, failed, utils.FormatElapsed(total))

	if failed > 0 {
		sb.WriteString("\n=== Failures ===\n")
		for _, r := range results {
			if r.Ok() {
				continue
			}
			fmt.Fprintf(&sb, "[%s] exit=%d: %s\n", r.Name, ExitCode(r), utils.SanitizeOutput(r.Err.Error()))
			stderr := r.Value.stderrTail
			var exitErr *ExitError
			if errors.As(r.Err, &exitErr) && exitErr.Stderr != "" {
				stderr = exitErr.Stderr
			}
			if detail := extractErrorDetail(stderr, errorDetailMaxLen); detail != "" {
				fmt.Fprintf(&sb, "  detail: %s\n", detail)
			}
			if r.Value.StderrLog != "" {
				fmt.Fprintf(&sb, "  log: %s\n", r.Value.StderrLog)
			}
		}
	}

	if summaryOnly {
		return strings.TrimRight(sb.String(), "\n")
	}

	sb.WriteString("\n=== Outputs ===\n")
	for _, r := range results {
		status := "ok"
		if !r.Ok() {
			status = "failed"
		}
		fmt.Fprintf(&sb, "--- %s (%s, %s) ---\n", r.Name, status, utils.FormatElapsed(r.Elapsed))
		switch {
		case r.Value.StdoutLog != "":
			fmt.Fprintf(&sb, "stdout: %s\nstderr: %s\n", r.Value.StdoutLog, r.Value.StderrLog)
		case r.Value.Stdout != "":
			sb.WriteString(utils.SanitizeOutput(r.Value.Stdout))
			if !strings.HasSuffix(r.Value.Stdout, "\n") {
				sb.WriteByte('\n')
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
