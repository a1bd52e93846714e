package executor

import (
	"bytes"
	"unicode/utf8"

	ilogger "jobswarm/internal/logger"
	"jobswarm/internal/utils"
)

const (
	stderrLogLineLimit = 1000 // runes per logged stderr line
	stderrTailBytes    = 4 * 1024
)

// jobStderr forwards each complete stderr line of a captured job to the
// runner log as a structured entry tagged with the job name.
type jobStderr struct {
	job      string
	maxLine  int
	pending  []byte
	overflow bool
}

func newJobStderr(job string, maxLine int) *jobStderr {
	if maxLine <= 0 {
		maxLine = stderrLogLineLimit
	}
	return &jobStderr{job: job, maxLine: maxLine}
}

func (w *jobStderr) Write(p []byte) (int, error) {
	if w == nil {
		return len(p), nil
	}
	n := len(p)
	for {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			break
		}
		w.hold(p[:i])
		w.emit()
		p = p[i+1:]
	}
	w.hold(p)
	return n, nil
}

// Flush logs a trailing line that never got its newline.
func (w *jobStderr) Flush() {
	if w == nil {
		return
	}
	w.emit()
}

// hold buffers at most maxLine*UTFMax bytes of the current line.
func (w *jobStderr) hold(p []byte) {
	limit := w.maxLine * utf8.UTFMax
	if room := limit - len(w.pending); len(p) > room {
		p = p[:utils.Max(room, 0)]
		w.overflow = true
	}
	w.pending = append(w.pending, p...)
}

func (w *jobStderr) emit() {
	line := bytes.TrimRight(w.pending, "\r")
	overflow := w.overflow
	w.pending = w.pending[:0]
	w.overflow = false
	if len(line) == 0 {
		return
	}
	ilogger.LogInfo("job stderr", "job", w.job, "text", w.clip(string(line), overflow))
}

func (w *jobStderr) clip(line string, overflow bool) string {
	if !overflow {
		return utils.SafeTruncate(line, w.maxLine)
	}
	runes := []rune(line)
	if keep := w.maxLine - 3; keep > 0 && len(runes) > keep {
		runes = runes[:keep]
	}
	return string(runes) + "..."
}

// tailBuffer keeps the last limit bytes written to it; the report reads the
// failure detail from it.
type tailBuffer struct {
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.limit <= 0 {
		return n, nil
	}
	if len(p) > b.limit {
		p = p[len(p)-b.limit:]
	}
	if drop := len(b.data) + len(p) - b.limit; drop > 0 {
		b.data = b.data[:copy(b.data, b.data[drop:])]
	}
	b.data = append(b.data, p...)
	return n, nil
}

func (b *tailBuffer) String() string { return string(b.data) }
