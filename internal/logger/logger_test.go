package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)
	return dir
}

func readLogLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", sc.Text(), err)
		}
		out = append(out, entry)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return out
}

func TestNewLoggerNaming(t *testing.T) {
	dir := useTempDir(t)
	pid := os.Getpid()

	tests := []struct {
		suffix string
		want   string
	}{
		{"", fmt.Sprintf("jobswarm-%d.log", pid)},
		{"nightly", fmt.Sprintf("jobswarm-%d-nightly.log", pid)},
		{"batch 7/a", fmt.Sprintf("jobswarm-%d-batch_7_a.log", pid)},
	}
	for _, tt := range tests {
		l, err := NewLoggerWithSuffix(tt.suffix)
		if err != nil {
			t.Fatalf("NewLoggerWithSuffix(%q) error: %v", tt.suffix, err)
		}
		if got := l.Path(); got != filepath.Join(dir, tt.want) {
			t.Errorf("suffix %q: path = %q, want %q", tt.suffix, got, filepath.Join(dir, tt.want))
		}
		_ = l.Close()
	}
}

func TestLoggerRecordsBatchEvents(t *testing.T) {
	useTempDir(t)
	l, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	l.Info("shell batch submitted", "jobs", 3, "workers", 2)
	l.Error("job failed", "job", "align", "command", "bwa mem ref.fa r1.fq", "exit", 1)
	l.Flush()

	entries := readLogLines(t, l.Path())
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2: %v", len(entries), entries)
	}
	first, second := entries[0], entries[1]
	if first["level"] != "info" || first["message"] != "shell batch submitted" || first["jobs"] != float64(3) {
		t.Fatalf("first entry = %v", first)
	}
	if second["level"] != "error" || second["job"] != "align" || second["exit"] != float64(1) {
		t.Fatalf("second entry = %v", second)
	}
	if second["pid"] != float64(os.Getpid()) {
		t.Fatalf("pid field = %v", second["pid"])
	}
}

func TestLoggerRecentErrorsFollowJobFailures(t *testing.T) {
	useTempDir(t)
	l, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	if got := l.ExtractRecentErrors(5); got != nil {
		t.Fatalf("fresh logger errors = %v", got)
	}

	l.Info("job finished", "job", "1")
	l.Warn("job missed wait budget", "index", 2)
	l.Error("job failed", "job", "3")
	l.Debug("starting job", "job", "4")

	got := l.ExtractRecentErrors(10)
	want := []string{"job missed wait budget", "job failed"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("recent errors = %v, want %v", got, want)
	}
	if got := l.ExtractRecentErrors(1); len(got) != 1 || got[0] != "job failed" {
		t.Fatalf("last error = %v", got)
	}
	if got := l.ExtractRecentErrors(0); got != nil {
		t.Fatalf("ExtractRecentErrors(0) = %v", got)
	}

	for i := 0; i < maxErrorEntries+20; i++ {
		l.Error(fmt.Sprintf("job %d failed", i))
	}
	all := l.ExtractRecentErrors(maxErrorEntries * 2)
	if len(all) != maxErrorEntries {
		t.Fatalf("kept %d errors, want %d", len(all), maxErrorEntries)
	}
	if all[len(all)-1] != fmt.Sprintf("job %d failed", maxErrorEntries+19) {
		t.Fatalf("newest error = %q", all[len(all)-1])
	}
}

func TestLoggerCloseKeepsFileUntilRemoved(t *testing.T) {
	useTempDir(t)
	l, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	l.Error("job failed", "job", "1")

	if err := l.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	l.Error("after close")

	entries := readLogLines(t, l.Path())
	if len(entries) != 1 {
		t.Fatalf("entries after close = %v", entries)
	}

	if err := l.RemoveLogFile(); err != nil {
		t.Fatalf("RemoveLogFile error: %v", err)
	}
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Fatalf("log file still present: %v", err)
	}
	if err := l.RemoveLogFile(); err != nil {
		t.Fatalf("RemoveLogFile on missing file: %v", err)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Info("ignored")
	l.Flush()
	if l.Path() != "" || l.ExtractRecentErrors(3) != nil {
		t.Fatalf("nil logger should be inert")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close on nil: %v", err)
	}
	if err := l.RemoveLogFile(); err != nil {
		t.Fatalf("RemoveLogFile on nil: %v", err)
	}
}

func TestActiveLoggerHelpers(t *testing.T) {
	useTempDir(t)
	t.Cleanup(func() { _ = CloseLogger() })

	LogError("no logger installed")
	if ActiveLogger() != nil {
		t.Fatalf("unexpected active logger")
	}

	l, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	SetLogger(l)
	LogInfo("batch started", "jobs", 2)
	LogWarn("ledger batch not recorded")
	LogError("job failed", "job", "2")

	if got := ActiveLogger().ExtractRecentErrors(5); len(got) != 2 || got[1] != "job failed" {
		t.Fatalf("recent errors = %v", got)
	}
	if err := CloseLogger(); err != nil {
		t.Fatalf("CloseLogger error: %v", err)
	}
	if ActiveLogger() != nil {
		t.Fatalf("CloseLogger should detach the logger")
	}
	if entries := readLogLines(t, l.Path()); len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
}

func TestLoggerConcurrentWorkers(t *testing.T) {
	useTempDir(t)
	l, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger error: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				l.Info("job finished", "worker", w, "job", i)
			}
		}(w)
	}
	wg.Wait()
	l.Flush()

	if got := len(readLogLines(t, l.Path())); got != workers*perWorker {
		t.Fatalf("lines = %d, want %d", got, workers*perWorker)
	}
}

func TestSanitizeLogSuffix(t *testing.T) {
	tests := map[string]string{
		"":            "log",
		"   ":         "log",
		"align-1":     "align-1",
		"qc.v2_final": "qc.v2_final",
		" sub 01/run": "sub_01_run",
		"Ünïcode":     "_n_code",
	}
	for in, want := range tests {
		if got := SanitizeLogSuffix(in); got != want {
			t.Errorf("SanitizeLogSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePIDFromLog(t *testing.T) {
	tests := []struct {
		name string
		pid  int
		ok   bool
	}{
		{"jobswarm-123.log", 123, true},
		{"jobswarm-77-nightly.log", 77, true},
		{"/tmp/x/jobswarm-9.log", 9, true},
		{"jobswarm-.log", 0, false},
		{"jobswarm.log", 0, false},
		{"jobswarm-12.txt", 0, false},
		{"jobswarm-abc.log", 0, false},
		{"jobswarm-0.log", 0, false},
		{"jobswarm-99999999999.log", 0, false},
		{"other-12.log", 0, false},
	}
	for _, tt := range tests {
		pid, ok := parsePIDFromLog(tt.name)
		if pid != tt.pid || ok != tt.ok {
			t.Errorf("parsePIDFromLog(%q) = (%d, %v), want (%d, %v)", tt.name, pid, ok, tt.pid, tt.ok)
		}
	}
}

func writeRunnerLog(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(`{"level":"info"}`+"\n"), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	sort.Strings(out)
	return out
}

func TestCleanupOldLogsRunnerScenarios(t *testing.T) {
	dir := useTempDir(t)

	writeRunnerLog(t, dir, "jobswarm-111.log")
	writeRunnerLog(t, dir, "jobswarm-222-nightly.log")
	writeRunnerLog(t, dir, "jobswarm-333.log")
	writeRunnerLog(t, dir, "jobswarm-abc.log")
	notes := writeRunnerLog(t, dir, "notes.log")

	alive := map[int]bool{222: true, 333: true}
	t.Cleanup(SetProcessRunningCheck(func(pid int) bool { return alive[pid] }))
	t.Cleanup(SetProcessStartTimeFn(func(pid int) time.Time {
		if pid == 333 {
			// started after the log was written: the pid was recycled
			return time.Now().Add(time.Hour)
		}
		return time.Time{}
	}))

	stats, err := CleanupOldLogs()
	if err != nil {
		t.Fatalf("CleanupOldLogs error: %v", err)
	}
	if stats.Scanned != 4 || stats.Deleted != 2 || stats.Kept != 2 || stats.Errors != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if got := baseNames(stats.DeletedFiles); strings.Join(got, ",") != "jobswarm-111.log,jobswarm-333.log" {
		t.Fatalf("deleted = %v", got)
	}
	if got := baseNames(stats.KeptFiles); strings.Join(got, ",") != "jobswarm-222-nightly.log,jobswarm-abc.log" {
		t.Fatalf("kept = %v", got)
	}
	if _, err := os.Stat(notes); err != nil {
		t.Fatalf("unrelated log touched: %v", err)
	}
}

func TestCleanupOldLogsStaleUnknownStartTime(t *testing.T) {
	dir := useTempDir(t)
	old := writeRunnerLog(t, dir, "jobswarm-444.log")
	past := time.Now().Add(-pidReuseAge - time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	t.Cleanup(SetProcessRunningCheck(func(int) bool { return true }))
	t.Cleanup(SetProcessStartTimeFn(func(int) time.Time { return time.Time{} }))

	stats, err := CleanupOldLogs()
	if err != nil {
		t.Fatalf("CleanupOldLogs error: %v", err)
	}
	if stats.Deleted != 1 {
		t.Fatalf("week-old log of an unknown process should go: %+v", stats)
	}
}

func TestCleanupOldLogsRefusesSymlinks(t *testing.T) {
	dir := useTempDir(t)
	target := filepath.Join(t.TempDir(), "elsewhere.log")
	if err := os.WriteFile(target, []byte("keep"), 0o600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "jobswarm-555.log")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	t.Cleanup(SetProcessRunningCheck(func(int) bool { return false }))

	stats, err := CleanupOldLogs()
	if err != nil {
		t.Fatalf("CleanupOldLogs error: %v", err)
	}
	if stats.Deleted != 0 || stats.Kept != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if _, err := os.Lstat(link); err != nil {
		t.Fatalf("symlink removed: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("symlink target removed: %v", err)
	}
}

func TestCleanupOldLogsReportsFailures(t *testing.T) {
	dir := useTempDir(t)
	writeRunnerLog(t, dir, "jobswarm-601.log")
	writeRunnerLog(t, dir, "jobswarm-602.log")

	t.Cleanup(SetProcessRunningCheck(func(int) bool { return false }))
	t.Cleanup(SetRemoveLogFileFn(func(path string) error {
		if strings.HasSuffix(path, "jobswarm-602.log") {
			return errors.New("read-only filesystem")
		}
		return os.Remove(path)
	}))

	stats, err := CleanupOldLogs()
	if err == nil || !strings.Contains(err.Error(), "read-only filesystem") {
		t.Fatalf("err = %v, want remove failure", err)
	}
	if stats.Deleted != 1 || stats.Errors != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	t.Cleanup(SetGlobLogFilesFn(func(string) ([]string, error) {
		return nil, errors.New("bad pattern")
	}))
	if _, err := CleanupOldLogs(); err == nil || !strings.Contains(err.Error(), "list logs") {
		t.Fatalf("glob failure err = %v", err)
	}
}
