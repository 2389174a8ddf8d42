// Package definition reads and writes the local file representation of
// agents and workflows.
//
// Layout under the definitions root:
//
//	definitions/
//	├── System/
//	│   ├── Agents/<name>/{systemPrompt.md,jsonSchema.json}
//	│   └── AgenticWorkflows/<id>/workflow.json
//	└── CommonBackground/
//	    ├── Agents/...
//	    └── AgenticWorkflows/...
package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ccrm-agents/ccsync/internal/types"
)

// File names inside a definition directory.
const (
	PromptFile   = "systemPrompt.md"
	SchemaFile   = "jsonSchema.json"
	WorkflowFile = "workflow.json"
)

// Layout resolves definition paths below a root directory.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func scopeDir(scope types.Scope) (string, error) {
	switch scope {
	case types.ScopeSystem:
		return "System", nil
	case types.ScopeCommonBackground:
		return "CommonBackground", nil
	}
	return "", fmt.Errorf("invalid scope: %q", scope)
}

// Dir returns the directory holding all definitions of kind in scope.
// Only KindAgent and KindWorkflow have directories.
func (l Layout) Dir(scope types.Scope, kind types.ResourceKind) (string, error) {
	sd, err := scopeDir(scope)
	if err != nil {
		return "", err
	}
	switch kind {
	case types.KindAgent:
		return filepath.Join(l.Root, sd, "Agents"), nil
	case types.KindWorkflow:
		return filepath.Join(l.Root, sd, "AgenticWorkflows"), nil
	}
	return "", fmt.Errorf("no definition directory for %s", kind)
}

// AgentDir returns the directory of a single agent definition.
func (l Layout) AgentDir(scope types.Scope, name string) (string, error) {
	return l.entryDir(scope, types.KindAgent, name)
}

// WorkflowDir returns the directory of a single workflow definition.
func (l Layout) WorkflowDir(scope types.Scope, id string) (string, error) {
	return l.entryDir(scope, types.KindWorkflow, id)
}

func (l Layout) entryDir(scope types.Scope, kind types.ResourceKind, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid %s name: %q", kind, name)
	}
	dir, err := l.Dir(scope, kind)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// List returns the sorted names of the definition directories of kind in
// scope. A missing scope directory yields an empty list.
func (l Layout) List(scope types.Scope, kind types.ResourceKind) ([]string, error) {
	dir, err := l.Dir(scope, kind)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes a definition directory tree. Removing a directory that
// does not exist is not an error.
func (l Layout) Remove(scope types.Scope, kind types.ResourceKind, name string) error {
	dir, err := l.entryDir(scope, kind, name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return nil
}

// writeJSONFile writes pretty-printed JSON followed by a newline.
func writeJSONFile(path string, data []byte) error {
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
