package logger

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// pidReuseAge is how old a log must be before an unknown process start time
// is taken as evidence that its PID was recycled.
const pidReuseAge = 7 * 24 * time.Hour

// CleanupStats summarizes one CleanupOldLogs pass.
type CleanupStats struct {
	Scanned      int
	Deleted      int
	Kept         int
	Errors       int
	DeletedFiles []string
	KeptFiles    []string
}

var (
	processRunningCheck = isProcessRunning
	processStartTimeFn  = getProcessStartTime
	removeLogFileFn     = os.Remove
	globLogFiles        = filepath.Glob
	fileStatFn          = os.Lstat
	evalSymlinksFn      = filepath.EvalSymlinks
)

// CleanupOldLogs removes runner logs in the temp dir whose owning process is
// gone. Logs of live processes, symlinks and files resolving outside the temp
// dir are kept.
func CleanupOldLogs() (CleanupStats, error) { return cleanupOldLogs() }

func cleanupOldLogs() (CleanupStats, error) {
	var stats CleanupStats
	tempDir := os.TempDir()

	var matches []string
	for _, prefix := range LogPrefixes() {
		found, err := globLogFiles(filepath.Join(tempDir, prefix+"-*.log"))
		if err != nil {
			return CleanupStats{}, fmt.Errorf("list logs: %w", err)
		}
		matches = append(matches, found...)
	}

	var errs []error
	for _, path := range matches {
		stats.Scanned++

		pid, ok := parsePIDFromLog(path)
		if !ok {
			stats.keep(path)
			continue
		}
		if processRunningCheck(pid) && !isPIDReused(path, pid) {
			stats.keep(path)
			continue
		}
		if unsafe, reason := isUnsafeFile(path, tempDir); unsafe {
			logWarn(fmt.Sprintf("cleanup skipped %s: %s", path, reason))
			stats.keep(path)
			continue
		}
		if err := removeLogFileFn(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			stats.Errors++
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		stats.Deleted++
		stats.DeletedFiles = append(stats.DeletedFiles, path)
	}

	return stats, errors.Join(errs...)
}

func (s *CleanupStats) keep(path string) {
	s.Kept++
	s.KeptFiles = append(s.KeptFiles, path)
}

// parsePIDFromLog extracts the PID from jobswarm-<pid>[-suffix].log.
func parsePIDFromLog(path string) (int, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".log") {
		return 0, false
	}
	name = strings.TrimSuffix(name, ".log")

	for _, prefix := range LogPrefixes() {
		rest, found := strings.CutPrefix(name, prefix+"-")
		if !found {
			continue
		}
		digits, _, _ := strings.Cut(rest, "-")
		if digits == "" {
			return 0, false
		}
		pid, err := strconv.ParseInt(digits, 10, 64)
		if err != nil || pid <= 0 || pid > math.MaxInt32 {
			return 0, false
		}
		return int(pid), true
	}
	return 0, false
}

// isPIDReused reports whether a live pid most likely belongs to a process
// that started after the log was last written.
func isPIDReused(path string, pid int) bool {
	info, err := fileStatFn(path)
	if err != nil {
		return false
	}
	start := processStartTimeFn(pid)
	if start.IsZero() {
		return time.Since(info.ModTime()) > pidReuseAge
	}
	return start.After(info.ModTime())
}

func isUnsafeFile(path, tempDir string) (bool, string) {
	info, err := fileStatFn(path)
	if err != nil {
		return true, fmt.Sprintf("stat failed: %v", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return true, "refusing to delete symlink"
	}

	resolved, err := evalSymlinksFn(path)
	if err != nil {
		return true, fmt.Sprintf("path resolution failed: %v", err)
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return true, fmt.Sprintf("path resolution failed: %v", err)
	}

	base, err := filepath.Abs(tempDir)
	if err != nil {
		return true, "temp dir resolution failed"
	}
	if real, err := filepath.EvalSymlinks(base); err == nil {
		base = real
	}

	rel, err := filepath.Rel(base, filepath.Clean(resolved))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return true, "file is outside tempDir"
	}
	return false, ""
}

func SetProcessRunningCheck(fn func(int) bool) (restore func()) {
	prev := processRunningCheck
	if fn == nil {
		fn = isProcessRunning
	}
	processRunningCheck = fn
	return func() { processRunningCheck = prev }
}

func SetProcessStartTimeFn(fn func(int) time.Time) (restore func()) {
	prev := processStartTimeFn
	if fn == nil {
		fn = getProcessStartTime
	}
	processStartTimeFn = fn
	return func() { processStartTimeFn = prev }
}

func SetRemoveLogFileFn(fn func(string) error) (restore func()) {
	prev := removeLogFileFn
	if fn == nil {
		fn = os.Remove
	}
	removeLogFileFn = fn
	return func() { removeLogFileFn = prev }
}

func SetGlobLogFilesFn(fn func(string) ([]string, error)) (restore func()) {
	prev := globLogFiles
	if fn == nil {
		fn = filepath.Glob
	}
	globLogFiles = fn
	return func() { globLogFiles = prev }
}
