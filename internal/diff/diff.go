package diff

import "strings"

// LineKind classifies a line produced by Lines.
type LineKind int

const (
	Same LineKind = iota
	Added
	Removed
)

// String returns the lowercase name of the kind.
func (k LineKind) String() string {
	switch k {
	case Same:
		return "same"
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Line is one classified line of a line-level diff between two text
// snapshots. NewLineNumber is the 1-based position in the modified text;
// removed lines have no position there and carry 0.
type Line struct {
	Kind          LineKind
	Text          string
	NewLineNumber int
}

// Lines compares two whole-text snapshots line by line.
//
// The alignment is a greedy single pass, not a minimal edit script. At each
// position the cursors either match (same, both advance), or the current
// modified line is emitted as added when it does not occur anywhere in the
// unconsumed remainder of the original (only the modified cursor advances),
// otherwise the current original line is emitted as removed. The output
// covers every line of both inputs exactly once and is deterministic for a
// given input pair.
func Lines(original, modified string) []Line {
	oldLines := splitLines(original)
	newLines := splitLines(modified)

	result := make([]Line, 0, len(oldLines)+len(newLines))
	oldIdx, newIdx := 0, 0

	for oldIdx < len(oldLines) || newIdx < len(newLines) {
		switch {
		case oldIdx < len(oldLines) && newIdx < len(newLines) && oldLines[oldIdx] == newLines[newIdx]:
			result = append(result, Line{Kind: Same, Text: newLines[newIdx], NewLineNumber: newIdx + 1})
			oldIdx++
			newIdx++

		case newIdx < len(newLines) && !containsLine(oldLines[oldIdx:], newLines[newIdx]):
			result = append(result, Line{Kind: Added, Text: newLines[newIdx], NewLineNumber: newIdx + 1})
			newIdx++

		default:
			result = append(result, Line{Kind: Removed, Text: oldLines[oldIdx]})
			oldIdx++
		}
	}

	return result
}

// splitLines splits text on newline; empty input has no lines at all rather
// than a single empty one, so an empty original diffs to pure additions.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func containsLine(lines []string, target string) bool {
	for _, line := range lines {
		if line == target {
			return true
		}
	}
	return false
}

// Stats counts added and removed lines in a diff.
func Stats(lines []Line) (added, removed int) {
	for _, line := range lines {
		switch line.Kind {
		case Added:
			added++
		case Removed:
			removed++
		}
	}
	return added, removed
}
