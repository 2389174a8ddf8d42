package reconcile

import (
	"context"
	"encoding/json"

	"github.com/ccrm-agents/ccsync/internal/definition"
	"github.com/ccrm-agents/ccsync/internal/store"
	"github.com/ccrm-agents/ccsync/internal/types"
)

// AgentSyncer moves agent definitions between the definition tree and the
// agent tables of a scope.
type AgentSyncer interface {
	// Create inserts a new agent with a fresh id and writes its local
	// definition. An empty prompt gets a generic default.
	//
	// Returns an error wrapping ErrAlreadyExists if the name is taken in
	// the scope.
	Create(ctx context.Context, name string, scope types.Scope, description, prompt string) (string, error)

	// SyncToDB reads <scope>/Agents/<name>/ and upserts the agent row. When
	// the schema declares a tools key, the agent's tool associations are
	// reconciled against it.
	//
	// The agent id is taken from the schema's agentId, else from the stored
	// agent with the same name, else generated.
	//
	// Returns a NotFoundError if the definition directory is missing.
	//
	// Example:
	//   res, err := agents.SyncToDB(ctx, "planner", types.ScopeSystem)
	SyncToDB(ctx context.Context, name string, scope types.Scope) (*AgentSyncResult, error)

	// SyncFromDB overwrites the local definition of the named agent with
	// the stored row and its tool associations.
	//
	// Returns a NotFoundError if no such agent is stored.
	SyncFromDB(ctx context.Context, name string, scope types.Scope) (string, error)

	// Delete removes the stored agent and then its definition directory.
	// Returns false with no error if no agent matched.
	Delete(ctx context.Context, name string, scope types.Scope) (bool, error)

	// List returns the stored agents of scope, or of every scope when
	// scope is empty.
	List(ctx context.Context, scope types.Scope) ([]types.Agent, error)

	// Tools returns the tools associated with the named agent.
	Tools(ctx context.Context, name string, scope types.Scope) ([]types.Tool, error)
}

// ToolSyncer manages the global tool table and agent tool associations.
type ToolSyncer interface {
	// SyncAgentTools makes the agent's associations equal to the valid
	// declared entries. Tool rows are upserted first, then stale
	// associations removed, then new ones added. Invalid entries are
	// recorded in the result, not returned as errors. An invalid entry that
	// carries a toolId keeps its existing association.
	SyncAgentTools(ctx context.Context, agentID string, declared []definition.ToolEntry, scope types.Scope) (*ToolSyncResult, error)

	// Create stores a new tool and returns it.
	Create(ctx context.Context, spec ToolSpec) (*types.Tool, error)

	// Update changes the given columns of a tool. Returns false with no
	// error if the tool does not exist.
	Update(ctx context.Context, id string, patch store.ToolPatch) (bool, error)

	// Get returns one tool, or a NotFoundError.
	Get(ctx context.Context, id string) (*types.Tool, error)

	// List returns every tool ordered by name.
	List(ctx context.Context) ([]types.Tool, error)

	// FindOrphaned returns the tools no agent of any scope references.
	FindOrphaned(ctx context.Context) ([]types.Tool, error)

	// Delete removes a tool. While agents still reference it the delete is
	// refused with an AssociationExistsError unless force is set, in which
	// case the associations are removed first in the same transaction.
	Delete(ctx context.Context, id string, force bool) (bool, error)

	// CleanupOrphaned lists orphaned tools and deletes them when force is
	// set. It returns the orphans found and how many were deleted.
	CleanupOrphaned(ctx context.Context, force bool) ([]types.Tool, int, error)

	// AgentTools returns the tools associated with an agent.
	AgentTools(ctx context.Context, agentID string, scope types.Scope) ([]types.Tool, error)
}

// WorkflowSyncer moves workflow graphs between the definition tree and the
// workflow tables of a scope.
type WorkflowSyncer interface {
	// SyncToDB replaces the stored workflow, its nodes and its edges with
	// the content of <scope>/AgenticWorkflows/<id>/workflow.json in a
	// single transaction. Any failure leaves the stored workflow unchanged.
	//
	// Returns a NotFoundError if the definition is missing and a
	// DanglingReferenceError if a node names an agent no scope holds.
	SyncToDB(ctx context.Context, id string, scope types.Scope) (string, error)

	// SyncFromDB writes workflow.json from the stored rows.
	SyncFromDB(ctx context.Context, id string, scope types.Scope) (string, error)

	// Create writes a definition with a single ROUTER entrypoint node and
	// syncs it.
	Create(ctx context.Context, id, name string, scope types.Scope, description string) (string, error)

	// AddNode appends a node to the local definition and syncs it. The
	// agent, when set, must resolve in some scope. Returns the node id.
	AddNode(ctx context.Context, workflowID string, scope types.Scope, node NodeSpec) (string, error)

	// AddEdge appends an edge to the local definition and syncs it. Both
	// endpoints must be nodes of the definition. Returns the edge id.
	AddEdge(ctx context.Context, workflowID string, scope types.Scope, edge EdgeSpec) (string, error)

	// Validate checks the stored workflow. A missing workflow yields an
	// invalid report, not an error.
	Validate(ctx context.Context, id string, scope types.Scope) (*ValidationReport, error)

	// List returns the stored workflows of scope, or of every scope when
	// scope is empty.
	List(ctx context.Context, scope types.Scope) ([]types.Workflow, error)

	// Delete removes the stored workflow and then its definition
	// directory. Returns false with no error if nothing matched.
	Delete(ctx context.Context, id string, scope types.Scope) (bool, error)

	// WorkflowAgents returns the agents, of any scope, used by the
	// workflow's nodes.
	WorkflowAgents(ctx context.Context, id string, scope types.Scope) ([]types.AgentRef, error)

	// AgentWorkflows returns the workflows, of any scope, using the agent.
	AgentWorkflows(ctx context.Context, agentID string) ([]types.Workflow, error)
}

// AgentSyncResult describes one agent sync. Tools is nil when the schema
// declares no tools key.
type AgentSyncResult struct {
	ID    string          `json:"id"`
	Tools *ToolSyncResult `json:"tools,omitempty"`
}

// ToolSyncResult describes one tool association reconciliation.
type ToolSyncResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	// Skipped lists declared entries that were not stored, with the reason.
	Skipped []string `json:"skipped,omitempty"`
	// Failed lists association changes that did not apply.
	Failed []string `json:"failed,omitempty"`
}

// ToolSpec describes a tool created directly rather than declared by an
// agent.
type ToolSpec struct {
	Name            string
	Description     string
	Parameters      json.RawMessage
	Type            string
	InternalAPIPath string
}

// NodeSpec describes a node to add to a workflow.
type NodeSpec struct {
	Name     string
	NodeType string
	AgentID  string
}

// EdgeSpec describes an edge to add to a workflow. An empty Target makes a
// terminal edge.
type EdgeSpec struct {
	Source         string
	Target         string
	ConditionType  string
	ConditionValue string
}

// ValidationReport is the outcome of Validate.
type ValidationReport struct {
	Valid    bool            `json:"valid"`
	Workflow *types.Workflow `json:"workflow,omitempty"`
	Nodes    []types.Node    `json:"nodes,omitempty"`
	Edges    []types.Edge    `json:"edges,omitempty"`
	Errors   []string        `json:"errors"`
	Warnings []string        `json:"warnings"`
}

// BatchResult collects the outcome of syncing many definitions. Entries
// read "<SCOPE>:<name> (ID: <id>)" and "<SCOPE>:<name> - <error>".
type BatchResult struct {
	Success []string `json:"success"`
	Errors  []string `json:"errors"`
}
