package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
)

const (
	jsonLineReaderSize   = 64 * 1024
	jsonLineMaxBytes     = 10 * 1024 * 1024
	jsonLinePreviewBytes = 256
)

type lineScratch struct {
	buf     []byte
	preview []byte
}

const maxPooledLineScratchCap = 1 << 20 // 1 MiB

var lineScratchPool = sync.Pool{
	New: func() any {
		return &lineScratch{
			buf:     make([]byte, 0, jsonLineReaderSize),
			preview: make([]byte, 0, jsonLinePreviewBytes),
		}
	},
}

// LineError reports a JSON Lines record that could not be decoded.
type LineError struct {
	Line    int
	Preview string
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v: %s", e.Line, e.Err, e.Preview)
}

func (e *LineError) Unwrap() error { return e.Err }

var ErrLineTooLong = errors.New("line exceeds size limit")

// DecodeJSONLines decodes one JSON value per line of r into T and passes it
// to fn together with its 1-based line number. Blank lines and lines
// starting with '#' are skipped. Decoding stops at the first bad line or
// the first error returned by fn.
func DecodeJSONLines[T any](r io.Reader, fn func(line int, v T) error) error {
	return decodeJSONLines(r, jsonLineMaxBytes, fn)
}

func decodeJSONLines[T any](r io.Reader, maxBytes int, fn func(line int, v T) error) error {
	reader := bufio.NewReaderSize(r, jsonLineReaderSize)
	scratch := lineScratchPool.Get().(*lineScratch)
	if scratch.buf == nil {
		scratch.buf = make([]byte, 0, jsonLineReaderSize)
	} else {
		scratch.buf = scratch.buf[:0]
	}
	if scratch.preview == nil {
		scratch.preview = make([]byte, 0, jsonLinePreviewBytes)
	} else {
		scratch.preview = scratch.preview[:0]
	}
	defer func() {
		if cap(scratch.buf) > maxPooledLineScratchCap {
			scratch.buf = nil
		} else if scratch.buf != nil {
			scratch.buf = scratch.buf[:0]
		}
		if cap(scratch.preview) > jsonLinePreviewBytes*4 {
			scratch.preview = nil
		} else if scratch.preview != nil {
			scratch.preview = scratch.preview[:0]
		}
		lineScratchPool.Put(scratch)
	}()

	lineNo := 0
	for {
		line, tooLong, err := readLineWithLimit(reader, maxBytes, jsonLinePreviewBytes, scratch)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read line %d: %w", lineNo+1, err)
		}
		lineNo++

		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if tooLong {
			return &LineError{Line: lineNo, Preview: TruncateBytes(line, 100), Err: ErrLineTooLong}
		}

		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return &LineError{Line: lineNo, Preview: TruncateBytes(line, 100), Err: err}
		}
		if err := fn(lineNo, v); err != nil {
			return err
		}
	}
}

// WriteJSONLines writes each value as one compact JSON line.
func WriteJSONLines[T any](w io.Writer, values []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, v := range values {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

func readLineWithLimit(r *bufio.Reader, maxBytes int, previewBytes int, scratch *lineScratch) (line []byte, tooLong bool, err error) {
	if r == nil {
		return nil, false, errors.New("reader is nil")
	}
	if maxBytes <= 0 {
		return nil, false, errors.New("maxBytes must be > 0")
	}
	if previewBytes < 0 {
		previewBytes = 0
	}

	part, isPrefix, err := r.ReadLine()
	if err != nil {
		return nil, false, err
	}

	if !isPrefix {
		if len(part) > maxBytes {
			return part[:min(len(part), previewBytes)], true, nil
		}
		return part, false, nil
	}

	if scratch == nil {
		scratch = &lineScratch{}
	}
	if scratch.preview == nil {
		scratch.preview = make([]byte, 0, min(previewBytes, len(part)))
	}
	if scratch.buf == nil {
		scratch.buf = make([]byte, 0, min(maxBytes, len(part)*2))
	}

	preview := scratch.preview[:0]
	if previewBytes > 0 {
		preview = append(preview, part[:min(previewBytes, len(part))]...)
	}

	buf := scratch.buf[:0]
	total := 0
	if len(part) > maxBytes {
		tooLong = true
	} else {
		buf = append(buf, part...)
		total = len(part)
	}

	for isPrefix {
		part, isPrefix, err = r.ReadLine()
		if err != nil {
			return nil, tooLong, err
		}

		if previewBytes > 0 && len(preview) < previewBytes {
			preview = append(preview, part[:min(previewBytes-len(preview), len(part))]...)
		}

		if !tooLong {
			if total+len(part) > maxBytes {
				tooLong = true
				continue
			}
			buf = append(buf, part...)
			total += len(part)
		}
	}

	scratch.preview = preview
	scratch.buf = buf
	if tooLong {
		return preview, true, nil
	}
	return buf, false, nil
}

func TruncateBytes(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	if maxLen < 0 {
		return ""
	}
	return string(b[:maxLen]) + "..."
}
