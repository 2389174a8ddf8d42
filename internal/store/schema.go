package store

import (
	"context"
	"fmt"

	"github.com/ccrm-agents/ccsync/internal/types"
)

const toolTableSQL = `
CREATE TABLE IF NOT EXISTS system_tool (
	id TEXT PRIMARY KEY,
	tool_name TEXT NOT NULL,
	description_for_llm TEXT,
	json_schema TEXT NOT NULL DEFAULT '{}',
	tool_type TEXT NOT NULL DEFAULT 'custom',
	internal_api_path TEXT,
	is_system_tool BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

const toolNameIndexSQL = `CREATE INDEX IF NOT EXISTS idx_system_tool_name ON system_tool(tool_name)`

// scopeSchema returns the DDL for one scope's tables in dependency order.
func scopeSchema(t ScopeTables, dialect Dialect) []string {
	// SQLite accepts a forward reference to the node table and checks it on
	// write. PostgreSQL needs the node table to exist first.
	entrypoint := "entrypoint_node_id TEXT"
	if dialect == DialectSQLite {
		entrypoint = fmt.Sprintf("entrypoint_node_id TEXT REFERENCES %s(id)", t.Node)
	}

	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	system_prompt TEXT NOT NULL,
	llm_model_id TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`, t.Agent),

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	agent_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
	tool_id TEXT NOT NULL REFERENCES system_tool(id),
	created_at TEXT NOT NULL,
	PRIMARY KEY (agent_id, tool_id)
)`, t.AgentTool, t.Agent),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_tool ON %s(tool_id)`, t.AgentTool, t.AgentTool),

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	is_conversational BOOLEAN NOT NULL DEFAULT FALSE,
	%s,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`, t.Workflow, entrypoint),

		// agent_id may name an agent of either scope, so it has no
		// foreign key.
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
	agent_id TEXT,
	node_type TEXT NOT NULL,
	node_name TEXT NOT NULL,
	created_at TEXT NOT NULL
)`, t.Node, t.Workflow),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_workflow ON %s(workflow_id)`, t.Node, t.Node),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_agent ON %s(agent_id)`, t.Node, t.Node),

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
	source_node_id TEXT NOT NULL,
	target_node_id TEXT,
	condition_type TEXT NOT NULL,
	condition_value TEXT,
	created_at TEXT NOT NULL
)`, t.Edge, t.Workflow),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_workflow ON %s(workflow_id)`, t.Edge, t.Edge),
	}

	if dialect == DialectPostgres {
		constraint := fmt.Sprintf("fk_%s_entrypoint", t.Workflow)
		stmts = append(stmts, fmt.Sprintf(`
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
		ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (entrypoint_node_id) REFERENCES %s(id);
	END IF;
END $$`, constraint, t.Workflow, constraint, t.Node))
	}
	return stmts
}

// InitSchema creates every table and index that does not exist yet. It is
// idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	stmts := []string{toolTableSQL, toolNameIndexSQL}
	for _, scope := range types.AllScopes {
		tables, err := TablesFor(scope)
		if err != nil {
			return err
		}
		stmts = append(stmts, scopeSchema(tables, db.dialect)...)
	}

	return db.WithTx(ctx, func(q *Queries) error {
		for _, stmt := range stmts {
			if _, err := q.q.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
		}
		return nil
	})
}

// Reset deletes every row from every table, children first, in one
// transaction. The schema itself is kept.
func (db *DB) Reset(ctx context.Context) error {
	return db.WithTx(ctx, func(q *Queries) error {
		for _, scope := range types.AllScopes {
			t, err := TablesFor(scope)
			if err != nil {
				return err
			}
			// Deleting workflows cascades to their nodes, which the
			// entrypoint reference otherwise pins.
			for _, table := range []Table{t.Edge, t.Workflow, t.Node, t.AgentTool, t.Agent} {
				if _, err := q.exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
					return fmt.Errorf("failed to clear %s: %w", table, err)
				}
			}
		}
		if _, err := q.exec(ctx, fmt.Sprintf("DELETE FROM %s", ToolTable)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", ToolTable, err)
		}
		return nil
	})
}
