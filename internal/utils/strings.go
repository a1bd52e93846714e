package utils

import (
	"fmt"
	"strings"
	"time"
)

// SafeTruncate truncates s to at most maxLen runes, "..." included, without
// splitting a UTF-8 sequence.
func SafeTruncate(s string, maxLen int) string {
	if maxLen <= 0 || s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen < 4 {
		return string(runes[:1])
	}
	return string(runes[:maxLen-3]) + "..."
}

// SanitizeOutput drops ANSI CSI sequences and control characters other than
// newline and tab. Job output is printed back to terminals and reports.
func SanitizeOutput(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inEscape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\x1b' && i+1 < len(s) && s[i+1] == '[' {
			inEscape = true
			i++
			continue
		}
		if inEscape {
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEscape = false
			}
			continue
		}
		if c >= 32 || c == '\n' || c == '\t' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// FormatElapsed renders d as H:MM:SS with sub-second precision dropped.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// Plural returns singular when n == 1 and plural otherwise.
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
