package definition

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ccrm-agents/ccsync/internal/types"
)

// WorkflowDefinition is the content of <id>/workflow.json.
type WorkflowDefinition struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	Scope            types.Scope `json:"scope,omitempty"`
	IsConversational bool        `json:"isConversational"`
	EntrypointNodeID string      `json:"entrypointNodeId,omitempty"`
	Nodes            []NodeDef   `json:"nodes"`
	Edges            []EdgeDef   `json:"edges"`
}

// NodeDef is a workflow node as declared on disk.
type NodeDef struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflowId,omitempty"`
	NodeType   string `json:"nodeType"`
	NodeName   string `json:"nodeName"`
	AgentID    string `json:"agentId,omitempty"`
}

// EdgeDef is a workflow edge as declared on disk. An empty TargetNodeID
// marks a terminal edge.
type EdgeDef struct {
	ID             string `json:"id"`
	WorkflowID     string `json:"workflowId,omitempty"`
	SourceNodeID   string `json:"sourceNodeId"`
	TargetNodeID   string `json:"targetNodeId,omitempty"`
	ConditionType  string `json:"conditionType"`
	ConditionValue string `json:"conditionValue,omitempty"`
}

// Validate checks the structural fields of the definition. References
// between nodes, edges and agents are not checked here.
func (w *WorkflowDefinition) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("id is required")
	}
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}

	nodeIDs := make(map[string]bool, len(w.Nodes))
	for i, node := range w.Nodes {
		if node.ID == "" {
			return fmt.Errorf("nodes[%d]: id is required", i)
		}
		if nodeIDs[node.ID] {
			return fmt.Errorf("nodes[%d]: duplicate node id %s", i, node.ID)
		}
		nodeIDs[node.ID] = true
		if node.NodeType == "" {
			return fmt.Errorf("node %s: nodeType is required", node.ID)
		}
		if node.NodeName == "" {
			return fmt.Errorf("node %s: nodeName is required", node.ID)
		}
	}

	edgeIDs := make(map[string]bool, len(w.Edges))
	for i, edge := range w.Edges {
		if edge.ID == "" {
			return fmt.Errorf("edges[%d]: id is required", i)
		}
		if edgeIDs[edge.ID] {
			return fmt.Errorf("edges[%d]: duplicate edge id %s", i, edge.ID)
		}
		edgeIDs[edge.ID] = true
		if edge.SourceNodeID == "" {
			return fmt.Errorf("edge %s: sourceNodeId is required", edge.ID)
		}
		if edge.ConditionType == "" {
			return fmt.Errorf("edge %s: conditionType is required", edge.ID)
		}
	}
	return nil
}

// HasNode reports whether the definition declares a node with id.
func (w *WorkflowDefinition) HasNode(id string) bool {
	for _, node := range w.Nodes {
		if node.ID == id {
			return true
		}
	}
	return false
}

// ReadWorkflow reads <scope>/AgenticWorkflows/<id>/workflow.json. A missing
// directory yields an error wrapping fs.ErrNotExist. An empty id in the file
// defaults to the directory name; a different one is rejected.
func (l Layout) ReadWorkflow(scope types.Scope, id string) (*WorkflowDefinition, error) {
	dir, err := l.WorkflowDir(scope, id)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("workflow directory not found: %s: %w", dir, fs.ErrNotExist)
	}

	path := filepath.Join(dir, WorkflowFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	var wf WorkflowDefinition
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", path, err)
	}

	if wf.ID == "" {
		wf.ID = id
	}
	if wf.ID != id {
		return nil, fmt.Errorf("workflow file %s declares id %s, expected %s", path, wf.ID, id)
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow file %s: %w", path, err)
	}

	wf.Scope = scope
	return &wf, nil
}

// WriteWorkflow writes (overwriting) the workflow file of def.
func (l Layout) WriteWorkflow(def *WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid workflow: %w", err)
	}

	dir, err := l.WorkflowDir(def.Scope, def.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workflow directory: %w", err)
	}

	out := *def
	if out.Nodes == nil {
		out.Nodes = []NodeDef{}
	}
	if out.Edges == nil {
		out.Edges = []EdgeDef{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", def.ID, err)
	}
	return writeJSONFile(filepath.Join(dir, WorkflowFile), data)
}
