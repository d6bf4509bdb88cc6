package diff

// DefaultContextLines is how many unchanged lines are kept visible on each
// side of a change when collapsing.
const DefaultContextLines = 2

// Rendered is one display row of a collapsed diff: either a verbatim diff
// line, or a placeholder standing in for a contiguous run of hidden
// unchanged lines.
type Rendered struct {
	Line   Line
	Hidden int // number of hidden lines; 0 for a verbatim row
}

// IsPlaceholder reports whether the row stands in for hidden lines.
func (r Rendered) IsPlaceholder() bool {
	return r.Hidden > 0
}

// Collapse folds long unchanged runs of a diff into placeholder rows.
//
// A line is visible when it sits within contextLines (inclusive) of any
// added or removed line; every contiguous run of invisible lines becomes a
// single placeholder carrying the hidden count. Collapsing is a presentation
// transform only; it never alters the classification of the lines it keeps.
func Collapse(lines []Line, contextLines int) []Rendered {
	if contextLines < 0 {
		contextLines = DefaultContextLines
	}

	visible := make([]bool, len(lines))
	for i, line := range lines {
		if line.Kind == Same {
			continue
		}
		lo := i - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := i + contextLines
		if hi > len(lines)-1 {
			hi = len(lines) - 1
		}
		for j := lo; j <= hi; j++ {
			visible[j] = true
		}
	}

	result := make([]Rendered, 0, len(lines))
	for i := 0; i < len(lines); {
		if visible[i] {
			result = append(result, Rendered{Line: lines[i]})
			i++
			continue
		}
		hidden := 0
		for i < len(lines) && !visible[i] {
			hidden++
			i++
		}
		result = append(result, Rendered{Hidden: hidden})
	}

	return result
}
