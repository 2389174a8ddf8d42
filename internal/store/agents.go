package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/ccrm-agents/ccsync/internal/types"
)

const agentColumns = `id, name, COALESCE(description, '') AS description, system_prompt, llm_model_id, is_default`

// InsertAgent inserts a new agent row. It fails with ErrConstraint when the
// id or name is already taken in the scope.
func (q *Queries) InsertAgent(ctx context.Context, scope types.Scope, agent *types.Agent) error {
	table, err := TableFor(scope, types.KindAgent)
	if err != nil {
		return err
	}

	ts := now()
	_, err = q.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, description, system_prompt, llm_model_id, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, table),
		agent.ID, agent.Name, nullable(agent.Description), agent.SystemPrompt, agent.Model, agent.IsDefault, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent %s: %w", agent.Name, err)
	}
	return nil
}

// UpsertAgent inserts the agent or updates every mutable column of the row
// with the same id.
func (q *Queries) UpsertAgent(ctx context.Context, scope types.Scope, agent *types.Agent) error {
	table, err := TableFor(scope, types.KindAgent)
	if err != nil {
		return err
	}

	ts := now()
	_, err = q.exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, description, system_prompt, llm_model_id, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			system_prompt = excluded.system_prompt,
			llm_model_id = excluded.llm_model_id,
			is_default = excluded.is_default,
			updated_at = excluded.updated_at
	`, table),
		agent.ID, agent.Name, nullable(agent.Description), agent.SystemPrompt, agent.Model, agent.IsDefault, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", agent.Name, err)
	}
	return nil
}

// GetAgentByName returns the agent named name in scope.
// Returns sql.ErrNoRows if there is none.
func (q *Queries) GetAgentByName(ctx context.Context, scope types.Scope, name string) (*types.Agent, error) {
	return q.getAgent(ctx, scope, "name", name)
}

// GetAgent returns the agent with id in scope.
// Returns sql.ErrNoRows if there is none.
func (q *Queries) GetAgent(ctx context.Context, scope types.Scope, id string) (*types.Agent, error) {
	return q.getAgent(ctx, scope, "id", id)
}

func (q *Queries) getAgent(ctx context.Context, scope types.Scope, column, value string) (*types.Agent, error) {
	table, err := TableFor(scope, types.KindAgent)
	if err != nil {
		return nil, err
	}

	var agent types.Agent
	err = q.get(ctx, &agent, fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, agentColumns, table, column), value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get agent %s: %w", value, err)
	}
	agent.Scope = scope
	return &agent, nil
}

// ListAgents returns the agents of the given scopes ordered by name, then
// scope.
func (q *Queries) ListAgents(ctx context.Context, scopes ...types.Scope) ([]types.Agent, error) {
	var all []types.Agent
	for _, scope := range scopes {
		table, err := TableFor(scope, types.KindAgent)
		if err != nil {
			return nil, err
		}

		var agents []types.Agent
		if err := q.selectAll(ctx, &agents, fmt.Sprintf(`SELECT %s FROM %s ORDER BY name`, agentColumns, table)); err != nil {
			return nil, fmt.Errorf("failed to list %s agents: %w", scope, err)
		}
		for i := range agents {
			agents[i].Scope = scope
		}
		all = append(all, agents...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].Scope < all[j].Scope
	})
	return all, nil
}

// DeleteAgent removes the agent with id from scope. Its tool associations
// cascade. Returns false when no row matched.
func (q *Queries) DeleteAgent(ctx context.Context, scope types.Scope, id string) (bool, error) {
	table, err := TableFor(scope, types.KindAgent)
	if err != nil {
		return false, err
	}

	res, err := q.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete agent %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
