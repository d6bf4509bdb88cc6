package diff

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxDiffableSize skips diffing for very large files (>10MB).
const maxDiffableSize = 10 * 1024 * 1024

// Generator produces unified diff text for display and change summaries.
type Generator struct {
	colorEnabled bool
}

// NewGenerator creates a unified diff generator.
func NewGenerator(colorEnabled bool) *Generator {
	return &Generator{colorEnabled: colorEnabled}
}

// Result contains the generated unified diff and its statistics.
type Result struct {
	UnifiedDiff  string
	AddedLines   int
	RemovedLines int
	IsBinary     bool
}

// GenerateUnified creates a unified diff between old and new content.
func (g *Generator) GenerateUnified(oldContent, newContent, filename string) (*Result, error) {
	if oldContent == newContent {
		return &Result{}, nil
	}

	if isBinary(oldContent) || isBinary(newContent) {
		return &Result{
			UnifiedDiff: fmt.Sprintf("Binary file %s has changed", filename),
			IsBinary:    true,
		}, nil
	}

	if len(oldContent) > maxDiffableSize || len(newContent) > maxDiffableSize {
		return &Result{
			UnifiedDiff: fmt.Sprintf("--- a/%s\n+++ b/%s\n@@ Large file (>10MB), diff skipped for performance @@",
				filename, filename),
		}, nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	patches := dmp.PatchMake(oldContent, diffs)
	patchText := dmp.PatchToText(patches)

	// diffmatchpatch occasionally yields no patch text for whitespace-only
	// changes; fall back to the line-level diff in that case.
	if len(patches) == 0 || patchText == "" {
		return g.generateLineDiff(oldContent, newContent, filename), nil
	}

	added, removed := countChanges(diffs)
	return &Result{
		UnifiedDiff:  g.formatUnified(patchText, filename),
		AddedLines:   added,
		RemovedLines: removed,
	}, nil
}

// generateLineDiff builds a unified-format diff from the line classifier.
func (g *Generator) generateLineDiff(oldContent, newContent, filename string) *Result {
	lines := Lines(oldContent, newContent)
	added, removed := Stats(lines)

	var body strings.Builder
	body.WriteString(g.colorize("--- a/"+filename+"\n", color.FgRed))
	body.WriteString(g.colorize("+++ b/"+filename+"\n", color.FgGreen))
	hunk := fmt.Sprintf("@@ -1,%d +1,%d @@\n",
		len(splitLines(oldContent)), len(splitLines(newContent)))
	body.WriteString(g.colorize(hunk, color.FgCyan))

	for _, line := range lines {
		switch line.Kind {
		case Added:
			body.WriteString(g.colorize("+"+line.Text+"\n", color.FgGreen))
		case Removed:
			body.WriteString(g.colorize("-"+line.Text+"\n", color.FgRed))
		default:
			body.WriteString(" " + line.Text + "\n")
		}
	}

	return &Result{
		UnifiedDiff:  body.String(),
		AddedLines:   added,
		RemovedLines: removed,
	}
}

func (g *Generator) formatUnified(patchText, filename string) string {
	var result strings.Builder

	result.WriteString(g.colorize("--- a/"+filename+"\n", color.FgRed))
	result.WriteString(g.colorize("+++ b/"+filename+"\n", color.FgGreen))

	for _, line := range strings.Split(patchText, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			result.WriteString(g.colorize(line+"\n", color.FgCyan))
		case strings.HasPrefix(line, "+"):
			result.WriteString(g.colorize(line+"\n", color.FgGreen))
		case strings.HasPrefix(line, "-"):
			result.WriteString(g.colorize(line+"\n", color.FgRed))
		case line != "":
			result.WriteString(line + "\n")
		}
	}

	return result.String()
}

func countChanges(diffs []diffmatchpatch.Diff) (added, removed int) {
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += strings.Count(d.Text, "\n")
			if !strings.HasSuffix(d.Text, "\n") {
				added++
			}
		case diffmatchpatch.DiffDelete:
			removed += strings.Count(d.Text, "\n")
			if !strings.HasSuffix(d.Text, "\n") {
				removed++
			}
		}
	}
	return added, removed
}

func (g *Generator) colorize(text string, attr color.Attribute) string {
	if !g.colorEnabled {
		return text
	}
	return color.New(attr).Sprint(text)
}

// isBinary checks for null bytes in the first 8000 bytes.
func isBinary(content string) bool {
	checkLen := len(content)
	if checkLen > 8000 {
		checkLen = 8000
	}
	for i := 0; i < checkLen; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

// FormatSummary returns a human-readable summary of changes.
func (r *Result) FormatSummary() string {
	if r.IsBinary {
		return "Binary file changed"
	}
	if r.AddedLines == 0 && r.RemovedLines == 0 {
		return "No changes"
	}

	parts := []string{}
	if r.AddedLines > 0 {
		parts = append(parts, fmt.Sprintf("+%d lines", r.AddedLines))
	}
	if r.RemovedLines > 0 {
		parts = append(parts, fmt.Sprintf("-%d lines", r.RemovedLines))
	}
	return strings.Join(parts, ", ")
}
