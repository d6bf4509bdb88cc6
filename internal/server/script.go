package server

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"devhub/internal/logging"
	"devhub/internal/runstream"
)

// RunScript is a recorded step sequence replayed for one task.
type RunScript struct {
	TaskID string
	Steps  []runstream.Step
}

// ScriptStore holds the scripts the server can replay, keyed by task ID.
type ScriptStore struct {
	mu      sync.RWMutex
	scripts map[string]*RunScript
	logger  logging.Logger
}

// NewScriptStore creates an empty store.
func NewScriptStore(logger logging.Logger) *ScriptStore {
	return &ScriptStore{
		scripts: make(map[string]*RunScript),
		logger:  logging.OrNop(logger),
	}
}

// Put registers a script, replacing any previous one for the task.
func (s *ScriptStore) Put(script *RunScript) {
	if script == nil || script.TaskID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[script.TaskID] = script
}

// Get returns the script for a task.
func (s *ScriptStore) Get(taskID string) (*RunScript, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	script, ok := s.scripts[taskID]
	return script, ok
}

// Len reports how many scripts are registered.
func (s *ScriptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scripts)
}

// scriptRecord is the on-disk shape: the steps use the wire format, one JSON
// object per step with a "type" discriminant.
type scriptRecord struct {
	TaskID string            `json:"task_id"`
	Steps  []json.RawMessage `json:"steps"`
}

// LoadFile loads a JSON array of scripts and registers each one. It returns
// the number of scripts loaded.
func (s *ScriptStore) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read script file: %w", err)
	}

	var records []scriptRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("parse script file %s: %w", path, err)
	}

	loaded := 0
	for _, record := range records {
		if record.TaskID == "" {
			s.logger.Warn("skipping script with empty task_id in %s", path)
			continue
		}

		script := &RunScript{TaskID: record.TaskID}
		for i, raw := range record.Steps {
			step, err := runstream.UnmarshalStep(raw)
			if err != nil {
				return loaded, fmt.Errorf("script %s step %d: %w", record.TaskID, i, err)
			}
			script.Steps = append(script.Steps, step)
		}

		s.Put(script)
		loaded++
	}

	s.logger.Info("loaded %d run scripts from %s", loaded, path)
	return loaded, nil
}

// DemoScript returns a small built-in run used when no script file is
// configured, so the server is usable out of the box.
func DemoScript(taskID string) *RunScript {
	return &RunScript{
		TaskID: taskID,
		Steps: []runstream.Step{
			&runstream.Thinking{Content: "Reviewing the task and the project layout"},
			&runstream.ToolCall{Tool: "read_file", Input: map[string]any{"path": "README.md"}},
			&runstream.ToolResult{Result: "# demo project"},
			&runstream.FileWrite{
				Path:            "README.md",
				OriginalContent: "# demo project",
				NewContent:      "# demo project\n\nUpdated by the agent.",
				Description:     "document the change",
			},
			&runstream.PRCreated{URL: "https://example.com/pr/1", Number: 1, BranchName: "agent/demo"},
			&runstream.Complete{Content: "All requested changes are in place."},
		},
	}
}
