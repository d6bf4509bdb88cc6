package runstream

import (
	"encoding/json"
	"fmt"
)

// StepKind discriminates the step union. It is carried on the wire as the
// "type" field of each record.
type StepKind string

const (
	KindThinking   StepKind = "thinking"
	KindToolCall   StepKind = "tool_call"
	KindToolResult StepKind = "tool_result"
	KindFileWrite  StepKind = "file_write"
	KindPRCreated  StepKind = "pr_created"
	KindError      StepKind = "error"
	KindDone       StepKind = "done"
	KindComplete   StepKind = "complete"
)

// Step is one immutable unit of agent progress within a run. Concrete
// variants each own only the fields their kind uses; a step is never
// mutated after it has been appended to a run's log.
type Step interface {
	Kind() StepKind
}

// Thinking is a reasoning narrative emitted by the agent.
type Thinking struct {
	Content string `json:"content"`
}

func (Thinking) Kind() StepKind { return KindThinking }

// ToolCall records the invocation of a capability with structured arguments.
type ToolCall struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input,omitempty"`
}

func (ToolCall) Kind() StepKind { return KindToolCall }

// Summary returns a one-line description of the call, preferring a path,
// query, or title argument when one is present.
func (s ToolCall) Summary() string {
	for _, key := range []string{"path", "query", "title"} {
		if value, ok := s.Input[key].(string); ok && value != "" {
			return fmt.Sprintf("%s(%s)", s.Tool, value)
		}
	}
	return s.Tool
}

// ToolResult carries the output of a completed tool invocation.
type ToolResult struct {
	Result string `json:"result"`
}

func (ToolResult) Kind() StepKind { return KindToolResult }

// FileWrite proposes a full-content change to a single file. The original
// content may be empty for a new file.
type FileWrite struct {
	Path            string `json:"path"`
	OriginalContent string `json:"content"`
	NewContent      string `json:"fileContent"`
	Description     string `json:"description,omitempty"`
}

func (FileWrite) Kind() StepKind { return KindFileWrite }

// PRCreated reports the pull request opened for the run's changes.
type PRCreated struct {
	URL        string `json:"prUrl"`
	Number     int    `json:"prNumber"`
	BranchName string `json:"branchName"`
}

func (PRCreated) Kind() StepKind { return KindPRCreated }

// ErrorStep is an application-level error reported by the server. It is a
// normal log entry and does not by itself terminate the run.
type ErrorStep struct {
	Content string `json:"content"`
}

func (ErrorStep) Kind() StepKind { return KindError }

// Done marks the run settled.
type Done struct {
	Content string `json:"content,omitempty"`
}

func (Done) Kind() StepKind { return KindDone }

// Complete marks the run settled successfully.
type Complete struct {
	Content string `json:"content,omitempty"`
}

func (Complete) Kind() StepKind { return KindComplete }

// UnmarshalStep decodes one wire record into its step variant. Records with
// a missing or unknown "type" are an error so the consumer can drop them.
func UnmarshalStep(data []byte) (Step, error) {
	var head struct {
		Type StepKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode step envelope: %w", err)
	}

	var step Step
	switch head.Type {
	case KindThinking:
		step = &Thinking{}
	case KindToolCall:
		step = &ToolCall{}
	case KindToolResult:
		step = &ToolResult{}
	case KindFileWrite:
		step = &FileWrite{}
	case KindPRCreated:
		step = &PRCreated{}
	case KindError:
		step = &ErrorStep{}
	case KindDone:
		step = &Done{}
	case KindComplete:
		step = &Complete{}
	default:
		return nil, fmt.Errorf("unknown step type %q", head.Type)
	}

	if err := json.Unmarshal(data, step); err != nil {
		return nil, fmt.Errorf("decode %s step: %w", head.Type, err)
	}
	return step, nil
}

// MarshalStep encodes a step as one wire record, injecting the "type"
// discriminant alongside the variant's own fields.
func MarshalStep(step Step) ([]byte, error) {
	raw, err := json.Marshal(step)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["type"] = string(step.Kind())
	return json.Marshal(fields)
}

// IsTerminal reports whether the step kind settles a run.
func IsTerminal(kind StepKind) bool {
	return kind == KindDone || kind == KindComplete
}
