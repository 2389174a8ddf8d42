package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ccrm-agents/ccsync/internal/types"
)

const workflowColumns = `id, name, COALESCE(description, '') AS description, is_conversational,
	COALESCE(entrypoint_node_id, '') AS entrypoint_node_id`

// UpsertWorkflowShell inserts the workflow row or updates its attributes.
// The entrypoint is cleared in both cases so the node set can be replaced;
// SetWorkflowEntrypoint restores it afterwards.
func (q *Queries) UpsertWorkflowShell(ctx context.Context, scope types.Scope, wf *types.Workflow) error {
	table, err := TableFor(scope, types.KindWorkflow)
	if err != nil {
		return err
	}

	ts := now()
	_, err = q.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, description, is_conversational, entrypoint_node_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			is_conversational = excluded.is_conversational,
			entrypoint_node_id = NULL,
			updated_at = excluded.updated_at
	`, table),
		wf.ID, wf.Name, nullable(wf.Description), wf.IsConversational, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert workflow %s: %w", wf.ID, err)
	}
	return nil
}

// SetWorkflowEntrypoint points the workflow at nodeID, or clears the
// entrypoint when nodeID is empty.
func (q *Queries) SetWorkflowEntrypoint(ctx context.Context, scope types.Scope, workflowID, nodeID string) error {
	table, err := TableFor(scope, types.KindWorkflow)
	if err != nil {
		return err
	}

	_, err = q.exec(ctx, fmt.Sprintf(`UPDATE %s SET entrypoint_node_id = ?, updated_at = ? WHERE id = ?`, table),
		nullable(nodeID), now(), workflowID)
	if err != nil {
		return fmt.Errorf("failed to set entrypoint of workflow %s: %w", workflowID, err)
	}
	return nil
}

// GetWorkflow returns the workflow with id in scope.
// Returns sql.ErrNoRows if there is none.
func (q *Queries) GetWorkflow(ctx context.Context, scope types.Scope, id string) (*types.Workflow, error) {
	table, err := TableFor(scope, types.KindWorkflow)
	if err != nil {
		return nil, err
	}

	var wf types.Workflow
	if err := q.get(ctx, &wf, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, workflowColumns, table), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get workflow %s: %w", id, err)
	}
	wf.Scope = scope
	return &wf, nil
}

// ListWorkflows returns the workflows of the given scopes ordered by name,
// then scope.
func (q *Queries) ListWorkflows(ctx context.Context, scopes ...types.Scope) ([]types.Workflow, error) {
	var all []types.Workflow
	for _, scope := range scopes {
		table, err := TableFor(scope, types.KindWorkflow)
		if err != nil {
			return nil, err
		}

		var wfs []types.Workflow
		if err := q.selectAll(ctx, &wfs, fmt.Sprintf(`SELECT %s FROM %s ORDER BY name, id`, workflowColumns, table)); err != nil {
			return nil, fmt.Errorf("failed to list %s workflows: %w", scope, err)
		}
		for i := range wfs {
			wfs[i].Scope = scope
		}
		all = append(all, wfs...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].Scope < all[j].Scope
	})
	return all, nil
}

// DeleteWorkflow removes the workflow with id; nodes and edges cascade.
// Returns false when no row matched.
func (q *Queries) DeleteWorkflow(ctx context.Context, scope types.Scope, id string) (bool, error) {
	table, err := TableFor(scope, types.KindWorkflow)
	if err != nil {
		return false, err
	}

	res, err := q.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteWorkflowNodes removes every node of the workflow. The entrypoint
// must already be cleared.
func (q *Queries) DeleteWorkflowNodes(ctx context.Context, scope types.Scope, workflowID string) error {
	table, err := TableFor(scope, types.KindWorkflowNode)
	if err != nil {
		return err
	}
	if _, err := q.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE workflow_id = ?`, table), workflowID); err != nil {
		return fmt.Errorf("failed to clear nodes of workflow %s: %w", workflowID, err)
	}
	return nil
}

// InsertNode inserts one workflow node.
func (q *Queries) InsertNode(ctx context.Context, scope types.Scope, node *types.Node) error {
	table, err := TableFor(scope, types.KindWorkflowNode)
	if err != nil {
		return err
	}

	_, err = q.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, workflow_id, agent_id, node_type, node_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, table), node.ID, node.WorkflowID, nullable(node.AgentID), node.NodeType, node.NodeName, now())
	if err != nil {
		return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
	}
	return nil
}

// WorkflowNodes returns the nodes of the workflow ordered by id.
func (q *Queries) WorkflowNodes(ctx context.Context, scope types.Scope, workflowID string) ([]types.Node, error) {
	table, err := TableFor(scope, types.KindWorkflowNode)
	if err != nil {
		return nil, err
	}

	var nodes []types.Node
	err = q.selectAll(ctx, &nodes, fmt.Sprintf(`
		SELECT id, workflow_id, COALESCE(agent_id, '') AS agent_id, node_type, node_name
		FROM %s WHERE workflow_id = ? ORDER BY id
	`, table), workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes of workflow %s: %w", workflowID, err)
	}
	return nodes, nil
}

// DeleteWorkflowEdges removes every edge of the workflow.
func (q *Queries) DeleteWorkflowEdges(ctx context.Context, scope types.Scope, workflowID string) error {
	table, err := TableFor(scope, types.KindWorkflowEdge)
	if err != nil {
		return err
	}
	if _, err := q.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE workflow_id = ?`, table), workflowID); err != nil {
		return fmt.Errorf("failed to clear edges of workflow %s: %w", workflowID, err)
	}
	return nil
}

// InsertEdge inserts one workflow edge. Endpoints are not checked.
func (q *Queries) InsertEdge(ctx context.Context, scope types.Scope, edge *types.Edge) error {
	table, err := TableFor(scope, types.KindWorkflowEdge)
	if err != nil {
		return err
	}

	_, err = q.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, workflow_id, source_node_id, target_node_id, condition_type, condition_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, table),
		edge.ID, edge.WorkflowID, edge.SourceNodeID, nullable(edge.TargetNodeID),
		edge.ConditionType, nullable(edge.ConditionValue), now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert edge %s: %w", edge.ID, err)
	}
	return nil
}

// WorkflowEdges returns the edges of the workflow ordered by id.
func (q *Queries) WorkflowEdges(ctx context.Context, scope types.Scope, workflowID string) ([]types.Edge, error) {
	table, err := TableFor(scope, types.KindWorkflowEdge)
	if err != nil {
		return nil, err
	}

	var edges []types.Edge
	err = q.selectAll(ctx, &edges, fmt.Sprintf(`
		SELECT id, workflow_id, source_node_id, COALESCE(target_node_id, '') AS target_node_id,
			condition_type, COALESCE(condition_value, '') AS condition_value
		FROM %s WHERE workflow_id = ? ORDER BY id
	`, table), workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges of workflow %s: %w", workflowID, err)
	}
	return edges, nil
}

// WorkflowAgents returns the distinct agents, from any scope, referenced by
// the nodes of the workflow.
func (q *Queries) WorkflowAgents(ctx context.Context, scope types.Scope, workflowID string) ([]types.AgentRef, error) {
	nodeTable, err := TableFor(scope, types.KindWorkflowNode)
	if err != nil {
		return nil, err
	}

	var parts []string
	var args []any
	for _, agentScope := range types.AllScopes {
		agentTable, err := TableFor(agentScope, types.KindAgent)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fmt.Sprintf(`
			SELECT DISTINCT a.id, a.name, '%s' AS scope
			FROM %s a JOIN %s n ON n.agent_id = a.id
			WHERE n.workflow_id = ?`, agentScope, agentTable, nodeTable))
		args = append(args, workflowID)
	}

	var refs []types.AgentRef
	query := strings.Join(parts, " UNION ") + " ORDER BY name, scope"
	if err := q.selectAll(ctx, &refs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list agents of workflow %s: %w", workflowID, err)
	}
	return refs, nil
}

// AgentWorkflows returns the workflows of any scope with a node invoking
// the agent.
func (q *Queries) AgentWorkflows(ctx context.Context, agentID string) ([]types.Workflow, error) {
	var all []types.Workflow
	for _, scope := range types.AllScopes {
		tables, err := TablesFor(scope)
		if err != nil {
			return nil, err
		}

		var wfs []types.Workflow
		err = q.selectAll(ctx, &wfs, fmt.Sprintf(`
			SELECT w.id, w.name, COALESCE(w.description, '') AS description, w.is_conversational,
				COALESCE(w.entrypoint_node_id, '') AS entrypoint_node_id
			FROM %s w
			WHERE EXISTS (SELECT 1 FROM %s n WHERE n.workflow_id = w.id AND n.agent_id = ?)
			ORDER BY w.name, w.id
		`, tables.Workflow, tables.Node), agentID)
		if err != nil {
			return nil, fmt.Errorf("failed to list workflows of agent %s: %w", agentID, err)
		}
		for i := range wfs {
			wfs[i].Scope = scope
		}
		all = append(all, wfs...)
	}
	return all, nil
}
