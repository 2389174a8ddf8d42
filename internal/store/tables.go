package store

import (
	"fmt"

	"github.com/ccrm-agents/ccsync/internal/types"
)

// Table is the name of a table in the canonical schema. Only the constants
// below are valid; table names are never built from input.
type Table string

const (
	TableSystemAgent        Table = "system_agent"
	TableSystemAgentTool    Table = "system_agent_tool"
	TableSystemWorkflow     Table = "system_agent_workflow"
	TableSystemWorkflowNode Table = "system_agent_workflow_node"
	TableSystemWorkflowEdge Table = "system_agent_workflow_edge"

	TableCommonAgent        Table = "common_background_agent"
	TableCommonAgentTool    Table = "common_background_agent_tool"
	TableCommonWorkflow     Table = "common_background_agent_workflow"
	TableCommonWorkflowNode Table = "common_background_agent_workflow_node"
	TableCommonWorkflowEdge Table = "common_background_agent_workflow_edge"

	// ToolTable is shared by every scope.
	ToolTable Table = "system_tool"
)

// ScopeTables is the set of tables owned by one scope.
type ScopeTables struct {
	Agent     Table
	AgentTool Table
	Workflow  Table
	Node      Table
	Edge      Table
}

var scopeTables = map[types.Scope]ScopeTables{
	types.ScopeSystem: {
		Agent:     TableSystemAgent,
		AgentTool: TableSystemAgentTool,
		Workflow:  TableSystemWorkflow,
		Node:      TableSystemWorkflowNode,
		Edge:      TableSystemWorkflowEdge,
	},
	types.ScopeCommonBackground: {
		Agent:     TableCommonAgent,
		AgentTool: TableCommonAgentTool,
		Workflow:  TableCommonWorkflow,
		Node:      TableCommonWorkflowNode,
		Edge:      TableCommonWorkflowEdge,
	},
}

// TablesFor returns the tables of scope.
func TablesFor(scope types.Scope) (ScopeTables, error) {
	tables, ok := scopeTables[scope]
	if !ok {
		return ScopeTables{}, fmt.Errorf("invalid scope: %q", scope)
	}
	return tables, nil
}

// TableFor returns the table holding rows of kind in scope.
func TableFor(scope types.Scope, kind types.ResourceKind) (Table, error) {
	tables, err := TablesFor(scope)
	if err != nil {
		return "", err
	}
	switch kind {
	case types.KindAgent:
		return tables.Agent, nil
	case types.KindAgentTool:
		return tables.AgentTool, nil
	case types.KindWorkflow:
		return tables.Workflow, nil
	case types.KindWorkflowNode:
		return tables.Node, nil
	case types.KindWorkflowEdge:
		return tables.Edge, nil
	}
	return "", fmt.Errorf("no table for resource kind %s", kind)
}
