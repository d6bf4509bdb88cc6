package render

import (
	"fmt"
	"hash/fnv"
	"io"
	"strings"

	"github.com/fatih/color"
	lru "github.com/hashicorp/golang-lru/v2"

	"devhub/internal/diff"
	"devhub/internal/logging"
	"devhub/internal/runstream"
)

const defaultCacheSize = 128

// Color helpers shared by the run view.
var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Renderer writes a run's step log as terminal text. Diff renderings are
// memoized, keyed by path and content hashes, so re-rendering an unchanged
// expanded step costs a cache lookup.
type Renderer struct {
	contextLines int
	cache        *lru.Cache[string, string]
	logger       logging.Logger
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithContextLines sets how many unchanged lines stay visible around a change.
func WithContextLines(n int) Option {
	return func(r *Renderer) {
		r.contextLines = n
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Renderer) {
		r.logger = logging.OrNop(logger)
	}
}

// NewRenderer creates a renderer with a fresh diff cache.
func NewRenderer(opts ...Option) *Renderer {
	cache, err := lru.New[string, string](defaultCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}

	r := &Renderer{
		contextLines: diff.DefaultContextLines,
		cache:        cache,
		logger:       logging.NewComponentLogger("Renderer"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderRun writes the full step log, expanding the file writes the run has
// marked expanded.
func (r *Renderer) RenderRun(w io.Writer, run *runstream.Run) {
	for _, step := range run.Steps() {
		expanded := false
		if write, ok := step.(*runstream.FileWrite); ok {
			expanded = run.IsExpanded(write.Path)
		}
		r.RenderStep(w, step, expanded)
	}

	if !run.IsRunning() {
		if run.Canceled() {
			fmt.Fprintln(w, gray("run canceled"))
		} else if run.Succeeded() {
			fmt.Fprintln(w, green("run completed"))
		}
	}
}

// RenderStep writes one step. File writes get their diff inlined beneath the
// summary line when expanded.
func (r *Renderer) RenderStep(w io.Writer, step runstream.Step, expanded bool) {
	switch s := step.(type) {
	case *runstream.Thinking:
		fmt.Fprintln(w, yellow("* ")+gray(s.Content))
	case *runstream.ToolCall:
		fmt.Fprintln(w, cyan("-> "+s.Summary()))
	case *runstream.ToolResult:
		fmt.Fprintln(w, gray(indent(truncate(s.Result, 400), "   ")))
	case *runstream.FileWrite:
		r.renderFileWrite(w, s, expanded)
	case *runstream.PRCreated:
		fmt.Fprintf(w, "%s %s (%s)\n", bold(fmt.Sprintf("PR #%d:", s.Number)), s.URL, s.BranchName)
	case *runstream.ErrorStep:
		fmt.Fprintln(w, red("error: "+s.Content))
	case *runstream.Done:
		if s.Content != "" {
			fmt.Fprintln(w, s.Content)
		}
	case *runstream.Complete:
		if s.Content != "" {
			fmt.Fprintln(w, s.Content)
		}
	}
}

func (r *Renderer) renderFileWrite(w io.Writer, write *runstream.FileWrite, expanded bool) {
	lines := diff.Lines(write.OriginalContent, write.NewContent)
	added, removed := diff.Stats(lines)

	header := bold("write " + write.Path)
	if write.Description != "" {
		header += " " + gray(write.Description)
	}
	header += " " + gray(fmt.Sprintf("(+%d/-%d)", added, removed))
	fmt.Fprintln(w, header)

	if expanded {
		fmt.Fprint(w, r.FileDiff(write))
	}
}

// FileDiff returns the collapsed, colored diff text for one file write.
func (r *Renderer) FileDiff(write *runstream.FileWrite) string {
	key := diffCacheKey(write)
	if cached, ok := r.cache.Get(key); ok {
		return cached
	}

	rendered := r.renderDiff(write.OriginalContent, write.NewContent)
	r.cache.Add(key, rendered)
	return rendered
}

func (r *Renderer) renderDiff(original, modified string) string {
	lines := diff.Lines(original, modified)

	changed := false
	for _, line := range lines {
		if line.Kind != diff.Same {
			changed = true
			break
		}
	}
	if !changed {
		return gray("  no differences") + "\n"
	}

	var out strings.Builder
	for _, row := range diff.Collapse(lines, r.contextLines) {
		if row.IsPlaceholder() {
			out.WriteString(gray(fmt.Sprintf("  ... %d unchanged lines hidden", row.Hidden)))
			out.WriteByte('\n')
			continue
		}
		switch row.Line.Kind {
		case diff.Added:
			out.WriteString(green(fmt.Sprintf("%4d + %s", row.Line.NewLineNumber, row.Line.Text)))
		case diff.Removed:
			out.WriteString(red("     - " + row.Line.Text))
		default:
			out.WriteString(fmt.Sprintf("%4d   %s", row.Line.NewLineNumber, row.Line.Text))
		}
		out.WriteByte('\n')
	}
	return out.String()
}

func diffCacheKey(write *runstream.FileWrite) string {
	h := fnv.New64a()
	_, _ = io.WriteString(h, write.OriginalContent)
	original := h.Sum64()

	h.Reset()
	_, _ = io.WriteString(h, write.NewContent)
	modified := h.Sum64()

	return fmt.Sprintf("%s:%x:%x", write.Path, original, modified)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
