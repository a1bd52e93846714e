package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const maxErrorEntries = 100

// Logger writes JSON lines to a per-process file under the temp dir and keeps
// the most recent warnings and errors in memory for the exit report.
type Logger struct {
	path   string
	file   *os.File
	zl     zerolog.Logger
	closed atomic.Bool

	mu  sync.Mutex
	buf *bufio.Writer

	errMu      sync.Mutex
	errEntries []string
}

// NewLogger creates $TMPDIR/jobswarm-<pid>.log.
func NewLogger() (*Logger, error) {
	return NewLoggerWithSuffix("")
}

// NewLoggerWithSuffix creates $TMPDIR/jobswarm-<pid>-<suffix>.log. The suffix
// is sanitized for use in a file name.
func NewLoggerWithSuffix(suffix string) (*Logger, error) {
	pid := os.Getpid()
	name := fmt.Sprintf("%s-%d", PrimaryLogPrefix(), pid)
	if strings.TrimSpace(suffix) != "" {
		name += "-" + sanitizeLogSuffix(suffix)
	}
	path := filepath.Join(os.TempDir(), name+".log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Logger{
		path: path,
		file: f,
		buf:  bufio.NewWriterSize(f, 32*1024),
	}
	l.zl = zerolog.New(lockedWriter{l}).With().Timestamp().Int("pid", pid).Logger()
	return l, nil
}

type lockedWriter struct{ l *Logger }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	if w.l.buf == nil {
		return len(p), nil
	}
	return w.l.buf.Write(p)
}

// Path returns the log file path, or "" for a nil logger.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(zerolog.DebugLevel, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(zerolog.InfoLevel, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(zerolog.WarnLevel, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.log(zerolog.ErrorLevel, msg, kv) }

func (l *Logger) log(level zerolog.Level, msg string, kv []any) {
	if l == nil || l.closed.Load() {
		return
	}
	if level >= zerolog.WarnLevel {
		l.rememberError(msg)
	}
	ev := l.zl.WithLevel(level)
	if ev == nil {
		return
	}
	if len(kv) > 0 {
		ev = ev.Fields(kv)
	}
	ev.Msg(msg)
}

func (l *Logger) rememberError(msg string) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	l.errEntries = append(l.errEntries, msg)
	if over := len(l.errEntries) - maxErrorEntries; over > 0 {
		l.errEntries = append(l.errEntries[:0], l.errEntries[over:]...)
	}
}

// ExtractRecentErrors returns up to maxEntries of the latest warnings and
// errors, oldest first.
func (l *Logger) ExtractRecentErrors(maxEntries int) []string {
	if l == nil || maxEntries <= 0 {
		return nil
	}
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if len(l.errEntries) == 0 {
		return nil
	}
	start := 0
	if len(l.errEntries) > maxEntries {
		start = len(l.errEntries) - maxEntries
	}
	out := make([]string, len(l.errEntries)-start)
	copy(out, l.errEntries[start:])
	return out
}

// Flush writes buffered entries to disk.
func (l *Logger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf != nil {
		_ = l.buf.Flush()
	}
}

// Close flushes and closes the file. The file itself is kept.
func (l *Logger) Close() error {
	if l == nil || l.closed.Swap(true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	if l.buf != nil {
		errs = append(errs, l.buf.Flush())
		l.buf = nil
	}
	if l.file != nil {
		errs = append(errs, l.file.Close())
	}
	return errors.Join(errs...)
}

// RemoveLogFile deletes the log file. A missing file is not an error.
func (l *Logger) RemoveLogFile() error {
	if l == nil || l.path == "" {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// sanitizeLogSuffix keeps [A-Za-z0-9._-] and maps everything else to '_'.
func sanitizeLogSuffix(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "log"
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SanitizeLogSuffix is the exported form of sanitizeLogSuffix.
func SanitizeLogSuffix(raw string) string { return sanitizeLogSuffix(raw) }
