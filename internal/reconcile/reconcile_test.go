package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrm-agents/ccsync/internal/definition"
	"github.com/ccrm-agents/ccsync/internal/store"
	"github.com/ccrm-agents/ccsync/internal/types"
)

// setupTest opens a temp database with the schema applied and an empty
// definition tree next to it.
func setupTest(t *testing.T) Config {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := store.Open("file:" + filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema(context.Background()), "failed to initialize schema")

	return Config{
		DB:     database,
		Layout: definition.NewLayout(filepath.Join(tmpDir, "definitions")),
	}
}

// writeAgentFiles writes an agent definition with a raw schema document.
func writeAgentFiles(t *testing.T, layout definition.Layout, scope types.Scope, name, prompt, schema string) {
	t.Helper()

	dir, err := layout.AgentDir(scope, name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, definition.PromptFile), []byte(prompt), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, definition.SchemaFile), []byte(schema), 0644))
}

func toolsSchema(names ...string) string {
	entries := make([]string, 0, len(names))
	for _, name := range names {
		entries = append(entries, `{"type": "function", "function": {"name": "`+name+`", "parameters": {"type": "object"}}}`)
	}
	return `{"description": "uses tools", "tools": [` + strings.Join(entries, ",") + `]}`
}

func TestAgentRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	agents := NewAgentSyncer(cfg)

	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "planner", "  You plan.\n\n",
		`{"agentId": "agent-1", "description": "Plans work", "model": "gpt-4o", "tools": [], "owner": "team-a"}`)

	res, err := agents.SyncToDB(ctx, "planner", types.ScopeSystem)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", res.ID)
	require.NotNil(t, res.Tools)

	stored, err := cfg.DB.GetAgent(ctx, types.ScopeSystem, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "You plan.", stored.SystemPrompt)
	assert.Equal(t, "Plans work", stored.Description)
	assert.Equal(t, "gpt-4o", stored.Model)

	id, err := agents.SyncFromDB(ctx, "planner", types.ScopeSystem)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", id)

	def, err := cfg.Layout.ReadAgent(types.ScopeSystem, "planner")
	require.NoError(t, err)
	assert.Equal(t, "You plan.", def.Prompt)
	assert.Equal(t, "agent-1", def.Schema.AgentID)
	assert.Equal(t, "Plans work", def.Schema.Description)
	assert.Equal(t, types.ScopeSystem, def.Schema.Scope)

	data, err := os.ReadFile(filepath.Join(cfg.Layout.Root, "System", "Agents", "planner", definition.SchemaFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"owner": "team-a"`)
}

func TestAgentSyncFromDBWithoutLocalDefinition(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	agents := NewAgentSyncer(cfg)

	require.NoError(t, cfg.DB.UpsertAgent(ctx, types.ScopeCommonBackground,
		&types.Agent{ID: "a1", Name: "helper", SystemPrompt: "Help.", Model: "gpt-4"}))

	_, err := agents.SyncFromDB(ctx, "helper", types.ScopeCommonBackground)
	require.NoError(t, err)

	def, err := cfg.Layout.ReadAgent(types.ScopeCommonBackground, "helper")
	require.NoError(t, err)
	assert.Equal(t, "Help.", def.Prompt)
	assert.True(t, def.Schema.DeclaresTools())
	assert.Empty(t, def.Schema.Tools)

	_, err = agents.SyncFromDB(ctx, "missing", types.ScopeCommonBackground)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAgentSyncIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	agents := NewAgentSyncer(cfg)

	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "writer", "Write.", toolsSchema("search", "fetch"))

	first, err := agents.SyncToDB(ctx, "writer", types.ScopeSystem)
	require.NoError(t, err)
	assert.Len(t, first.Tools.Added, 2)

	second, err := agents.SyncToDB(ctx, "writer", types.ScopeSystem)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, second.Tools.Added)
	assert.Empty(t, second.Tools.Removed)

	list, err := agents.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	tools, err := cfg.DB.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, tools, 2)
}

func TestAgentSyncMissingDefinition(t *testing.T) {
	cfg := setupTest(t)

	_, err := NewAgentSyncer(cfg).SyncToDB(context.Background(), "ghost", types.ScopeSystem)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "ghost", nf.Name)
}

func TestToolDiff(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	agents := NewAgentSyncer(cfg)

	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "worker", "Work.", toolsSchema("a", "b", "c"))
	res, err := agents.SyncToDB(ctx, "worker", types.ScopeSystem)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ToolIDForName("a"), ToolIDForName("b"), ToolIDForName("c")}, res.Tools.Added)

	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "worker", "Work.", toolsSchema("b", "c", "d"))
	res, err = agents.SyncToDB(ctx, "worker", types.ScopeSystem)
	require.NoError(t, err)
	assert.Equal(t, []string{ToolIDForName("a")}, res.Tools.Removed)
	assert.Equal(t, []string{ToolIDForName("d")}, res.Tools.Added)
	assert.Empty(t, res.Tools.Failed)

	ids, err := cfg.DB.AgentToolIDs(ctx, types.ScopeSystem, res.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ToolIDForName("b"), ToolIDForName("c"), ToolIDForName("d")}, ids)

	// The tool row of a survives as an orphan.
	orphans, err := NewToolSyncer(cfg).FindOrphaned(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "a", orphans[0].Name)
}

func TestToolSyncReportsFailedRemoval(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	agents := NewAgentSyncer(cfg)

	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "worker", "Work.", toolsSchema("a", "b", "c"))
	res, err := agents.SyncToDB(ctx, "worker", types.ScopeSystem)
	require.NoError(t, err)

	_, err = cfg.DB.Exec(ctx, fmt.Sprintf(`CREATE TRIGGER block_remove BEFORE DELETE ON system_agent_tool
		WHEN OLD.tool_id = '%s' BEGIN SELECT RAISE(ABORT, 'blocked'); END`, ToolIDForName("a")))
	require.NoError(t, err)

	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "worker", "Work.", toolsSchema("b", "c", "d"))
	res, err = agents.SyncToDB(ctx, "worker", types.ScopeSystem)
	require.NoError(t, err)
	require.Len(t, res.Tools.Failed, 1)
	assert.Contains(t, res.Tools.Failed[0], ToolIDForName("a"))
	assert.Empty(t, res.Tools.Removed)
	assert.Equal(t, []string{ToolIDForName("d")}, res.Tools.Added)

	ids, err := cfg.DB.AgentToolIDs(ctx, types.ScopeSystem, res.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ToolIDForName("a"), ToolIDForName("b"), ToolIDForName("c"), ToolIDForName("d")}, ids)
}

func TestToolSyncKeepsAssociationOfSkippedEntry(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	agents := NewAgentSyncer(cfg)

	good := `{"tools": [{"toolId": "t-keep", "type": "function", "function": {"name": "keep", "parameters": {"type": "object"}}}]}`
	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "holder", "Hold.", good)
	res, err := agents.SyncToDB(ctx, "holder", types.ScopeSystem)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-keep"}, res.Tools.Added)

	broken := `{"tools": [{"toolId": "t-keep", "type": "function", "function": {"name": "keep", "parameters": "oops"}}]}`
	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "holder", "Hold.", broken)
	res, err = agents.SyncToDB(ctx, "holder", types.ScopeSystem)
	require.NoError(t, err)
	assert.Len(t, res.Tools.Skipped, 1)
	assert.Empty(t, res.Tools.Removed)
	assert.Empty(t, res.Tools.Added)

	ids, err := cfg.DB.AgentToolIDs(ctx, types.ScopeSystem, res.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-keep"}, ids)
}

func TestToolSyncSkipsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)

	schema := `{"tools": [
		{"type": "function", "function": {"description": "no name"}},
		{"type": "function", "function": {"name": "listy", "parameters": [1, 2]}},
		{"toolId": "tool-ok", "type": "function", "function": {"name": "ok"}}
	]}`
	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "picky", "Pick.", schema)

	res, err := NewAgentSyncer(cfg).SyncToDB(ctx, "picky", types.ScopeSystem)
	require.NoError(t, err)
	assert.Len(t, res.Tools.Skipped, 2)
	assert.Equal(t, []string{"tool-ok"}, res.Tools.Added)

	tool, err := cfg.DB.GetTool(ctx, "tool-ok")
	require.NoError(t, err)
	assert.Equal(t, "function", tool.Type)
	assert.JSONEq(t, `{"toolId": "tool-ok", "type": "function", "function": {"name": "ok"}}`, tool.JSONSchema)
}

func TestAgentWithoutToolsKeyKeepsAssociations(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	agents := NewAgentSyncer(cfg)

	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "keeper", "Keep.", toolsSchema("x", "y"))
	res, err := agents.SyncToDB(ctx, "keeper", types.ScopeSystem)
	require.NoError(t, err)

	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "keeper", "Keep more.", `{"description": "no tools key"}`)
	again, err := agents.SyncToDB(ctx, "keeper", types.ScopeSystem)
	require.NoError(t, err)
	assert.Equal(t, res.ID, again.ID)
	assert.Nil(t, again.Tools)

	ids, err := cfg.DB.AgentToolIDs(ctx, types.ScopeSystem, res.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestAgentCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	agents := NewAgentSyncer(cfg)

	id, err := agents.Create(ctx, "fresh", types.ScopeCommonBackground, "A new agent", "")
	require.NoError(t, err)

	def, err := cfg.Layout.ReadAgent(types.ScopeCommonBackground, "fresh")
	require.NoError(t, err)
	assert.Equal(t, id, def.Schema.AgentID)
	assert.Equal(t, "You are fresh, a helpful AI assistant.", def.Prompt)

	stored, err := cfg.DB.GetAgent(ctx, types.ScopeCommonBackground, id)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, stored.Model)

	_, err = agents.Create(ctx, "fresh", types.ScopeCommonBackground, "", "")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	deleted, err := agents.Delete(ctx, "fresh", types.ScopeCommonBackground)
	require.NoError(t, err)
	assert.True(t, deleted)

	dir, err := cfg.Layout.AgentDir(types.ScopeCommonBackground, "fresh")
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	deleted, err = agents.Delete(ctx, "fresh", types.ScopeCommonBackground)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestToolDeleteForced(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	tools := NewToolSyncer(cfg)

	require.NoError(t, cfg.DB.UpsertAgent(ctx, types.ScopeSystem, &types.Agent{ID: "s1", Name: "one", SystemPrompt: "p", Model: "m"}))
	require.NoError(t, cfg.DB.UpsertAgent(ctx, types.ScopeCommonBackground, &types.Agent{ID: "c1", Name: "two", SystemPrompt: "p", Model: "m"}))

	tool, err := tools.Create(ctx, ToolSpec{Name: "shared", Description: "Shared tool"})
	require.NoError(t, err)
	assert.Equal(t, ToolIDForName("shared"), tool.ID)
	assert.Equal(t, DefaultToolType, tool.Type)

	require.NoError(t, cfg.DB.AddAgentTool(ctx, types.ScopeSystem, "s1", tool.ID))
	require.NoError(t, cfg.DB.AddAgentTool(ctx, types.ScopeCommonBackground, "c1", tool.ID))

	_, err = tools.Delete(ctx, tool.ID, false)
	require.Error(t, err)
	var assocErr *AssociationExistsError
	require.True(t, errors.As(err, &assocErr))
	assert.Equal(t, 2, assocErr.Count)
	assert.ErrorIs(t, err, ErrAssociationExists)

	deleted, err := tools.Delete(ctx, tool.ID, true)
	require.NoError(t, err)
	assert.True(t, deleted)

	count, err := cfg.DB.CountToolAssociations(ctx, tool.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = tools.Get(ctx, tool.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToolCreateRejectsDuplicatesAndBadParameters(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	tools := NewToolSyncer(cfg)

	_, err := tools.Create(ctx, ToolSpec{Name: "dup"})
	require.NoError(t, err)
	_, err = tools.Create(ctx, ToolSpec{Name: "dup"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = tools.Create(ctx, ToolSpec{Name: "bad", Parameters: []byte(`"string"`)})
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestCleanupOrphaned(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	tools := NewToolSyncer(cfg)

	require.NoError(t, cfg.DB.UpsertAgent(ctx, types.ScopeSystem, &types.Agent{ID: "s1", Name: "one", SystemPrompt: "p", Model: "m"}))
	used, err := tools.Create(ctx, ToolSpec{Name: "used"})
	require.NoError(t, err)
	_, err = tools.Create(ctx, ToolSpec{Name: "unused"})
	require.NoError(t, err)
	require.NoError(t, cfg.DB.AddAgentTool(ctx, types.ScopeSystem, "s1", used.ID))

	orphans, deleted, err := tools.CleanupOrphaned(ctx, false)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "unused", orphans[0].Name)
	assert.Zero(t, deleted)

	_, deleted, err = tools.CleanupOrphaned(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	all, err := tools.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "used", all[0].Name)
}

// sampleWorkflow returns a three node workflow: start → work → end.
func sampleWorkflow(id string, scope types.Scope, agentID string) *definition.WorkflowDefinition {
	return &definition.WorkflowDefinition{
		ID:               id,
		Name:             "Sample " + id,
		Description:      "sample workflow",
		Scope:            scope,
		EntrypointNodeID: id + "-start",
		Nodes: []definition.NodeDef{
			{ID: id + "-start", NodeType: types.NodeTypeRouter, NodeName: "Start"},
			{ID: id + "-work", NodeType: types.NodeTypeAgent, NodeName: "Work", AgentID: agentID},
			{ID: id + "-end", NodeType: types.NodeTypeRouter, NodeName: "End"},
		},
		Edges: []definition.EdgeDef{
			{ID: id + "-e1", SourceNodeID: id + "-start", TargetNodeID: id + "-work", ConditionType: types.ConditionAlways},
			{ID: id + "-e2", SourceNodeID: id + "-work", TargetNodeID: id + "-end", ConditionType: types.ConditionAlways},
			{ID: id + "-e3", SourceNodeID: id + "-end", ConditionType: types.ConditionAlways},
		},
	}
}

func TestWorkflowRoundTripAcrossScopes(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	workflows := NewWorkflowSyncer(cfg)

	require.NoError(t, cfg.DB.UpsertAgent(ctx, types.ScopeCommonBackground,
		&types.Agent{ID: "bg-agent", Name: "background", SystemPrompt: "p", Model: "m"}))

	wf := sampleWorkflow("wf1", types.ScopeSystem, "bg-agent")
	require.NoError(t, cfg.Layout.WriteWorkflow(wf))

	id, err := workflows.SyncToDB(ctx, "wf1", types.ScopeSystem)
	require.NoError(t, err)
	assert.Equal(t, "wf1", id)

	stored, err := cfg.DB.GetWorkflow(ctx, types.ScopeSystem, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "wf1-start", stored.EntrypointNodeID)

	refs, err := workflows.WorkflowAgents(ctx, "wf1", types.ScopeSystem)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, types.ScopeCommonBackground, refs[0].Scope)

	using, err := workflows.AgentWorkflows(ctx, "bg-agent")
	require.NoError(t, err)
	require.Len(t, using, 1)
	assert.Equal(t, "wf1", using[0].ID)

	require.NoError(t, cfg.Layout.Remove(types.ScopeSystem, types.KindWorkflow, "wf1"))
	_, err = workflows.SyncFromDB(ctx, "wf1", types.ScopeSystem)
	require.NoError(t, err)

	back, err := cfg.Layout.ReadWorkflow(types.ScopeSystem, "wf1")
	require.NoError(t, err)
	assert.Equal(t, wf.Name, back.Name)
	assert.Equal(t, wf.EntrypointNodeID, back.EntrypointNodeID)
	assert.ElementsMatch(t, []string{"wf1-start", "wf1-work", "wf1-end"}, nodeIDs(back))
	require.Len(t, back.Edges, 3)
	assert.Equal(t, "", back.Edges[2].TargetNodeID)
}

func nodeIDs(def *definition.WorkflowDefinition) []string {
	ids := make([]string, 0, len(def.Nodes))
	for _, n := range def.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestWorkflowResyncReplacesGraph(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	workflows := NewWorkflowSyncer(cfg)

	require.NoError(t, cfg.Layout.WriteWorkflow(sampleWorkflow("wf1", types.ScopeSystem, "")))
	_, err := workflows.SyncToDB(ctx, "wf1", types.ScopeSystem)
	require.NoError(t, err)

	// Replace every node, including the entrypoint.
	wf := &definition.WorkflowDefinition{
		ID:               "wf1",
		Name:             "Smaller",
		Scope:            types.ScopeSystem,
		EntrypointNodeID: "only",
		Nodes:            []definition.NodeDef{{ID: "only", NodeType: types.NodeTypeRouter, NodeName: "Only"}},
	}
	require.NoError(t, cfg.Layout.WriteWorkflow(wf))
	_, err = workflows.SyncToDB(ctx, "wf1", types.ScopeSystem)
	require.NoError(t, err)

	nodes, err := cfg.DB.WorkflowNodes(ctx, types.ScopeSystem, "wf1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	edges, err := cfg.DB.WorkflowEdges(ctx, types.ScopeSystem, "wf1")
	require.NoError(t, err)
	assert.Empty(t, edges)

	stored, err := cfg.DB.GetWorkflow(ctx, types.ScopeSystem, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "Smaller", stored.Name)
	assert.Equal(t, "only", stored.EntrypointNodeID)
}

func TestWorkflowDanglingReferenceRollsBack(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	workflows := NewWorkflowSyncer(cfg)

	require.NoError(t, cfg.Layout.WriteWorkflow(sampleWorkflow("wf1", types.ScopeSystem, "")))
	_, err := workflows.SyncToDB(ctx, "wf1", types.ScopeSystem)
	require.NoError(t, err)

	broken := sampleWorkflow("wf1", types.ScopeSystem, "ghost-agent")
	broken.Name = "Broken"
	require.NoError(t, cfg.Layout.WriteWorkflow(broken))

	_, err = workflows.SyncToDB(ctx, "wf1", types.ScopeSystem)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDanglingReference)
	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling))
	assert.Equal(t, "ghost-agent", dangling.AgentID)

	stored, err := cfg.DB.GetWorkflow(ctx, types.ScopeSystem, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "Sample wf1", stored.Name)
	assert.Equal(t, "wf1-start", stored.EntrypointNodeID)

	nodes, err := cfg.DB.WorkflowNodes(ctx, types.ScopeSystem, "wf1")
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
	for _, n := range nodes {
		assert.Empty(t, n.AgentID)
	}
}

func TestWorkflowDanglingReferenceOnFirstSyncLeavesNothing(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)

	require.NoError(t, cfg.Layout.WriteWorkflow(sampleWorkflow("wf1", types.ScopeSystem, "ghost-agent")))
	_, err := NewWorkflowSyncer(cfg).SyncToDB(ctx, "wf1", types.ScopeSystem)
	assert.ErrorIs(t, err, ErrDanglingReference)

	wfs, err := cfg.DB.ListWorkflows(ctx, types.AllScopes...)
	require.NoError(t, err)
	assert.Empty(t, wfs)
}

func TestWorkflowValidate(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	workflows := NewWorkflowSyncer(cfg)

	wf := &definition.WorkflowDefinition{
		ID:               "wf1",
		Name:             "Branchy",
		Scope:            types.ScopeSystem,
		EntrypointNodeID: "a",
		Nodes: []definition.NodeDef{
			{ID: "a", NodeType: types.NodeTypeRouter, NodeName: "A"},
			{ID: "b", NodeType: types.NodeTypeRouter, NodeName: "B"},
			{ID: "c", NodeType: types.NodeTypeRouter, NodeName: "C"},
		},
		Edges: []definition.EdgeDef{
			{ID: "e1", SourceNodeID: "a", TargetNodeID: "c", ConditionType: types.ConditionAlways},
		},
	}
	require.NoError(t, cfg.Layout.WriteWorkflow(wf))
	_, err := workflows.SyncToDB(ctx, "wf1", types.ScopeSystem)
	require.NoError(t, err)

	report, err := workflows.Validate(ctx, "wf1", types.ScopeSystem)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Errors)
	require.Len(t, report.Warnings, 1)
	assert.True(t, strings.HasSuffix(report.Warnings[0], ": b"), report.Warnings[0])
}

func TestWorkflowValidateReportsErrors(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	workflows := NewWorkflowSyncer(cfg)

	report, err := workflows.Validate(ctx, "missing", types.ScopeSystem)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Len(t, report.Errors, 1)

	// Edges are stored without endpoint checks and agents may be deleted
	// after a sync; both surface as validation errors.
	require.NoError(t, cfg.DB.UpsertAgent(ctx, types.ScopeSystem, &types.Agent{ID: "gone", Name: "gone", SystemPrompt: "p", Model: "m"}))
	wf := sampleWorkflow("wf2", types.ScopeSystem, "gone")
	wf.Edges = append(wf.Edges, definition.EdgeDef{ID: "wf2-bad", SourceNodeID: "nowhere", ConditionType: types.ConditionAlways})
	require.NoError(t, cfg.Layout.WriteWorkflow(wf))
	_, err = workflows.SyncToDB(ctx, "wf2", types.ScopeSystem)
	require.NoError(t, err)
	_, err = cfg.DB.DeleteAgent(ctx, types.ScopeSystem, "gone")
	require.NoError(t, err)

	report, err = workflows.Validate(ctx, "wf2", types.ScopeSystem)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Len(t, report.Errors, 2)
}

func TestWorkflowCreateAndEdit(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	workflows := NewWorkflowSyncer(cfg)

	require.NoError(t, cfg.DB.UpsertAgent(ctx, types.ScopeSystem, &types.Agent{ID: "agent-1", Name: "one", SystemPrompt: "p", Model: "m"}))

	_, err := workflows.Create(ctx, "flow", "Flow", types.ScopeSystem, "created")
	require.NoError(t, err)
	_, err = workflows.Create(ctx, "flow", "Flow", types.ScopeSystem, "")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	def, err := cfg.Layout.ReadWorkflow(types.ScopeSystem, "flow")
	require.NoError(t, err)
	require.Len(t, def.Nodes, 1)
	start := def.EntrypointNodeID

	nodeID, err := workflows.AddNode(ctx, "flow", types.ScopeSystem, NodeSpec{Name: "Work", AgentID: "agent-1"})
	require.NoError(t, err)

	_, err = workflows.AddEdge(ctx, "flow", types.ScopeSystem, EdgeSpec{Source: start, Target: nodeID})
	require.NoError(t, err)

	_, err = workflows.AddEdge(ctx, "flow", types.ScopeSystem, EdgeSpec{Source: "nope"})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = workflows.AddNode(ctx, "flow", types.ScopeSystem, NodeSpec{Name: "Ghost", AgentID: "ghost"})
	assert.ErrorIs(t, err, ErrDanglingReference)

	def, err = cfg.Layout.ReadWorkflow(types.ScopeSystem, "flow")
	require.NoError(t, err)
	assert.Len(t, def.Nodes, 2)
	assert.Len(t, def.Edges, 1)

	nodes, err := cfg.DB.WorkflowNodes(ctx, types.ScopeSystem, "flow")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	report, err := workflows.Validate(ctx, "flow", types.ScopeSystem)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Warnings)
}

func TestWorkflowDelete(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)
	workflows := NewWorkflowSyncer(cfg)

	require.NoError(t, cfg.Layout.WriteWorkflow(sampleWorkflow("wf1", types.ScopeCommonBackground, "")))
	_, err := workflows.SyncToDB(ctx, "wf1", types.ScopeCommonBackground)
	require.NoError(t, err)

	deleted, err := workflows.Delete(ctx, "wf1", types.ScopeCommonBackground)
	require.NoError(t, err)
	assert.True(t, deleted)

	names, err := cfg.Layout.List(types.ScopeCommonBackground, types.KindWorkflow)
	require.NoError(t, err)
	assert.Empty(t, names)

	deleted, err = workflows.Delete(ctx, "wf1", types.ScopeCommonBackground)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestBatchSyncAll(t *testing.T) {
	ctx := context.Background()
	cfg := setupTest(t)

	writeAgentFiles(t, cfg.Layout, types.ScopeCommonBackground, "bg", "Background.", `{"agentId": "bg-agent", "tools": []}`)
	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "good", "Good.", `{"tools": []}`)
	writeAgentFiles(t, cfg.Layout, types.ScopeSystem, "broken", "Broken.", `{not json`)

	// The workflow uses an agent defined in the other scope; agents sync
	// first so it resolves.
	require.NoError(t, cfg.Layout.WriteWorkflow(sampleWorkflow("wf1", types.ScopeSystem, "bg-agent")))
	require.NoError(t, cfg.Layout.WriteWorkflow(sampleWorkflow("wf2", types.ScopeSystem, "ghost")))

	result, err := NewBatch(cfg).SyncAll(ctx, types.AllScopes)
	require.NoError(t, err)

	assert.Len(t, result.Agents.Success, 2)
	require.Len(t, result.Agents.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Agents.Errors[0], "SYSTEM:broken - "), result.Agents.Errors[0])
	assert.Contains(t, result.Agents.Success, "COMMON_BACKGROUND:bg (ID: bg-agent)")

	assert.Equal(t, []string{"SYSTEM:wf1 (ID: wf1)"}, result.Workflows.Success)
	require.Len(t, result.Workflows.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Workflows.Errors[0], "SYSTEM:wf2 - "), result.Workflows.Errors[0])
}

func TestBatchSkipsMissingScopeDirectory(t *testing.T) {
	cfg := setupTest(t)

	result, err := NewBatch(cfg).SyncAllAgents(context.Background(), []types.Scope{types.ScopeSystem})
	require.NoError(t, err)
	assert.Empty(t, result.Success)
	assert.Empty(t, result.Errors)
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", &NotFoundError{Kind: "agent", Name: "x"}, true},
		{"dangling", &DanglingReferenceError{AgentID: "a", NodeID: "n"}, true},
		{"association", &AssociationExistsError{ToolID: "t", Count: 1}, true},
		{"wrapped invalid", errors.Join(errors.New("ctx"), ErrInvalidDefinition), true},
		{"other", errors.New("disk on fire"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRecoverable(tt.err))
		})
	}
}
