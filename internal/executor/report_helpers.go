package executor

import (
	"strings"

	"jobswarm/internal/utils"
)

// extractErrorDetail extracts meaningful error context from job stderr.
func extractErrorDetail(message string, maxLen int) string {
	if message == "" || maxLen <= 0 {
		return ""
	}

	lines := strings.Split(message, "\n")
	var errorLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") ||
			strings.Contains(lower, "fail") ||
			strings.Contains(lower, "exception") ||
			strings.Contains(lower, "abort") ||
			strings.Contains(lower, "timeout") ||
			strings.Contains(lower, "not found") ||
			strings.Contains(lower, "no such file") ||
			strings.Contains(lower, "permission denied") ||
			strings.Contains(lower, "cannot") ||
			strings.Contains(lower, "killed") ||
			strings.HasPrefix(line, "FAIL") {
			errorLines = append(errorLines, line)
		}
	}

	if len(errorLines) == 0 {
		start := len(lines) - 5
		if start < 0 {
			start = 0
		}
		for _, line := range lines[start:] {
			line = strings.TrimSpace(line)
			if line != "" {
				errorLines = append(errorLines, line)
			}
		}
	}

	result := strings.Join(errorLines, " | ")
	return utils.SafeTruncate(utils.SanitizeOutput(result), maxLen)
}
