// Package diff renders line-oriented differences, used to compare the
// outputs recorded for two runs.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	maxDiffLines    = 10000
	truncateMessage = "... (diff truncated, exceeds 10,000 lines) ..."
)

// Lines compares two sequences of lines and returns a unified-style listing:
// unchanged lines start with a space, removed ones with "-" and added ones
// with "+". Returns an empty string when both sides are equal.
func Lines(expected, actual []string, expectedLabel, actualLabel string) string {
	if equal(expected, actual) {
		return ""
	}

	dmp := diffmatchpatch.New()
	left, right, index := dmp.DiffLinesToChars(joinLines(expected), joinLines(actual))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(left, right, false), index)

	var buf strings.Builder
	buf.WriteString("--- " + expectedLabel + "\n")
	buf.WriteString("+++ " + actualLabel + "\n")

	written := 2
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			if written >= maxDiffLines {
				buf.WriteString(truncateMessage + "\n")
				return buf.String()
			}
			buf.WriteString(prefix + strings.TrimSuffix(line, "\n") + "\n")
			written++
		}
	}

	return buf.String()
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
