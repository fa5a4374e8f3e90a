// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package purge

import (
	"fmt"
	"strings"
	"time"
)

const (
	pathErrorLimit = 200
	runErrorLimit  = 500
)

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// countLines returns the number of non-blank lines in s.
func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// fatalDiagnostics keeps the non-blank lines of stderr that do not report a
// missing file.
func fatalDiagnostics(stderr string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(stderr), "\n") {
		if strings.TrimSpace(line) == "" || strings.Contains(line, "No such file") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func describeTimeout(d time.Duration) string {
	if d <= 0 || d%time.Hour != 0 {
		return d.String()
	}
	if h := int(d / time.Hour); h != 1 {
		return fmt.Sprintf("%d hours", h)
	}
	return "1 hour"
}
