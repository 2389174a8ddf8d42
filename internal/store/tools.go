package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ccrm-agents/ccsync/internal/types"
)

const toolColumns = `id, tool_name, COALESCE(description_for_llm, '') AS description_for_llm, json_schema,
	tool_type, COALESCE(internal_api_path, '') AS internal_api_path, is_system_tool`

// prefixedToolColumns is toolColumns qualified for joins against the tool
// table aliased as t.
const prefixedToolColumns = `t.id, t.tool_name, COALESCE(t.description_for_llm, '') AS description_for_llm, t.json_schema,
	t.tool_type, COALESCE(t.internal_api_path, '') AS internal_api_path, t.is_system_tool`

// UpsertTool inserts the tool or updates the row with the same id.
// is_system_tool is only set on insert.
func (q *Queries) UpsertTool(ctx context.Context, tool *types.Tool) error {
	ts := now()
	_, err := q.exec(ctx, `
		INSERT INTO system_tool (id, tool_name, description_for_llm, json_schema, tool_type, internal_api_path, is_system_tool, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			tool_name = excluded.tool_name,
			description_for_llm = excluded.description_for_llm,
			json_schema = excluded.json_schema,
			tool_type = excluded.tool_type,
			internal_api_path = excluded.internal_api_path,
			updated_at = excluded.updated_at
	`,
		tool.ID, tool.Name, nullable(tool.Description), jsonOrEmpty(tool.JSONSchema), tool.Type,
		nullable(tool.InternalAPIPath), tool.IsSystemTool, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tool %s: %w", tool.Name, err)
	}
	return nil
}

// ToolPatch lists the tool columns to change. Nil fields are left alone.
type ToolPatch struct {
	Name            *string
	Description     *string
	JSONSchema      *string
	Type            *string
	InternalAPIPath *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ToolPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.JSONSchema == nil && p.Type == nil && p.InternalAPIPath == nil
}

// UpdateTool applies patch to the tool with id. Returns false when no row
// matched.
func (q *Queries) UpdateTool(ctx context.Context, id string, patch ToolPatch) (bool, error) {
	if patch.IsEmpty() {
		return q.ToolExists(ctx, id)
	}

	var sets []string
	var args []any
	if patch.Name != nil {
		sets = append(sets, "tool_name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		sets = append(sets, "description_for_llm = ?")
		args = append(args, nullable(*patch.Description))
	}
	if patch.JSONSchema != nil {
		sets = append(sets, "json_schema = ?")
		args = append(args, jsonOrEmpty(*patch.JSONSchema))
	}
	if patch.Type != nil {
		sets = append(sets, "tool_type = ?")
		args = append(args, *patch.Type)
	}
	if patch.InternalAPIPath != nil {
		sets = append(sets, "internal_api_path = ?")
		args = append(args, nullable(*patch.InternalAPIPath))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	res, err := q.exec(ctx, fmt.Sprintf(`UPDATE system_tool SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return false, fmt.Errorf("failed to update tool %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetTool returns the tool with id.
// Returns sql.ErrNoRows if there is none.
func (q *Queries) GetTool(ctx context.Context, id string) (*types.Tool, error) {
	var tool types.Tool
	err := q.get(ctx, &tool, `SELECT `+toolColumns+` FROM system_tool WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get tool %s: %w", id, err)
	}
	return &tool, nil
}

// GetToolByName returns the oldest tool named name.
// Returns sql.ErrNoRows if there is none.
func (q *Queries) GetToolByName(ctx context.Context, name string) (*types.Tool, error) {
	var tool types.Tool
	err := q.get(ctx, &tool, `SELECT `+toolColumns+` FROM system_tool WHERE tool_name = ? ORDER BY created_at, id LIMIT 1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get tool %s: %w", name, err)
	}
	return &tool, nil
}

// ToolExists reports whether a tool with id exists.
func (q *Queries) ToolExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM system_tool WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to check tool %s: %w", id, err)
	}
	return n > 0, nil
}

// ListTools returns every tool ordered by name.
func (q *Queries) ListTools(ctx context.Context) ([]types.Tool, error) {
	var tools []types.Tool
	if err := q.selectAll(ctx, &tools, `SELECT `+toolColumns+` FROM system_tool ORDER BY tool_name, id`); err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return tools, nil
}

// DeleteTool removes the tool row. It fails with ErrConstraint while any
// association still references it. Returns false when no row matched.
func (q *Queries) DeleteTool(ctx context.Context, id string) (bool, error) {
	res, err := q.exec(ctx, `DELETE FROM system_tool WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete tool %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AgentToolIDs returns the ids of the tools associated with the agent.
func (q *Queries) AgentToolIDs(ctx context.Context, scope types.Scope, agentID string) ([]string, error) {
	table, err := TableFor(scope, types.KindAgentTool)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := q.selectAll(ctx, &ids, fmt.Sprintf(`SELECT tool_id FROM %s WHERE agent_id = ? ORDER BY tool_id`, table), agentID); err != nil {
		return nil, fmt.Errorf("failed to list tools of agent %s: %w", agentID, err)
	}
	return ids, nil
}

// AgentTools returns the tools associated with the agent ordered by name.
func (q *Queries) AgentTools(ctx context.Context, scope types.Scope, agentID string) ([]types.Tool, error) {
	table, err := TableFor(scope, types.KindAgentTool)
	if err != nil {
		return nil, err
	}

	var tools []types.Tool
	err = q.selectAll(ctx, &tools, fmt.Sprintf(`
		SELECT %s FROM system_tool t
		JOIN %s a ON a.tool_id = t.id
		WHERE a.agent_id = ?
		ORDER BY t.tool_name, t.id
	`, prefixedToolColumns, table), agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools of agent %s: %w", agentID, err)
	}
	return tools, nil
}

// AddAgentTool associates the tool with the agent. Adding an existing
// association is a no-op.
func (q *Queries) AddAgentTool(ctx context.Context, scope types.Scope, agentID, toolID string) error {
	table, err := TableFor(scope, types.KindAgentTool)
	if err != nil {
		return err
	}

	_, err = q.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (agent_id, tool_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (agent_id, tool_id) DO NOTHING
	`, table), agentID, toolID, now())
	if err != nil {
		return fmt.Errorf("failed to associate tool %s with agent %s: %w", toolID, agentID, err)
	}
	return nil
}

// RemoveAgentTool deletes one association. Returns false when it did not
// exist.
func (q *Queries) RemoveAgentTool(ctx context.Context, scope types.Scope, agentID, toolID string) (bool, error) {
	table, err := TableFor(scope, types.KindAgentTool)
	if err != nil {
		return false, err
	}

	res, err := q.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE agent_id = ? AND tool_id = ?`, table), agentID, toolID)
	if err != nil {
		return false, fmt.Errorf("failed to remove tool %s from agent %s: %w", toolID, agentID, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountToolAssociations counts the associations referencing the tool across
// every scope.
func (q *Queries) CountToolAssociations(ctx context.Context, toolID string) (int, error) {
	total := 0
	for _, scope := range types.AllScopes {
		table, err := TableFor(scope, types.KindAgentTool)
		if err != nil {
			return 0, err
		}
		var n int
		if err := q.get(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tool_id = ?`, table), toolID); err != nil {
			return 0, fmt.Errorf("failed to count associations of tool %s: %w", toolID, err)
		}
		total += n
	}
	return total, nil
}

// DeleteToolAssociations removes every association referencing the tool
// across every scope and returns how many were removed.
func (q *Queries) DeleteToolAssociations(ctx context.Context, toolID string) (int64, error) {
	var total int64
	for _, scope := range types.AllScopes {
		table, err := TableFor(scope, types.KindAgentTool)
		if err != nil {
			return 0, err
		}
		res, err := q.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tool_id = ?`, table), toolID)
		if err != nil {
			return 0, fmt.Errorf("failed to remove associations of tool %s: %w", toolID, err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// OrphanedTools returns the tools no agent of any scope references.
func (q *Queries) OrphanedTools(ctx context.Context) ([]types.Tool, error) {
	var conds []string
	for _, scope := range types.AllScopes {
		table, err := TableFor(scope, types.KindAgentTool)
		if err != nil {
			return nil, err
		}
		conds = append(conds, fmt.Sprintf(`NOT EXISTS (SELECT 1 FROM %s a WHERE a.tool_id = t.id)`, table))
	}

	var tools []types.Tool
	err := q.selectAll(ctx, &tools, fmt.Sprintf(`
		SELECT %s FROM system_tool t
		WHERE %s
		ORDER BY t.tool_name, t.id
	`, prefixedToolColumns, strings.Join(conds, " AND ")))
	if err != nil {
		return nil, fmt.Errorf("failed to find orphaned tools: %w", err)
	}
	return tools, nil
}

func jsonOrEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	return s
}
