package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrm-agents/ccsync/internal/definition"
	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/store"
	"github.com/ccrm-agents/ccsync/internal/types"
)

func TestClassify(t *testing.T) {
	layout := definition.NewLayout("/defs")

	tests := []struct {
		name   string
		path   string
		want   Target
		isDir  bool
		wantOK bool
	}{
		{"agent prompt", "/defs/System/Agents/planner/systemPrompt.md",
			Target{types.ScopeSystem, types.KindAgent, "planner"}, false, true},
		{"agent schema", "/defs/CommonBackground/Agents/writer/jsonSchema.json",
			Target{types.ScopeCommonBackground, types.KindAgent, "writer"}, false, true},
		{"agent dir", "/defs/System/Agents/planner",
			Target{types.ScopeSystem, types.KindAgent, "planner"}, true, true},
		{"workflow file", "/defs/System/AgenticWorkflows/wf-1/workflow.json",
			Target{types.ScopeSystem, types.KindWorkflow, "wf-1"}, false, true},
		{"editor swap file", "/defs/System/Agents/planner/.systemPrompt.md.swp", Target{}, false, false},
		{"nested too deep", "/defs/System/Agents/planner/extra/jsonSchema.json", Target{}, false, false},
		{"kind dir itself", "/defs/System/Agents", Target{}, false, false},
		{"outside root", "/elsewhere/System/Agents/planner/systemPrompt.md", Target{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, isDir, ok := Classify(layout, nil, filepath.FromSlash(tt.path))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.isDir, isDir)
		})
	}
}

func TestClassifyRespectsScopes(t *testing.T) {
	layout := definition.NewLayout("/defs")
	_, _, ok := Classify(layout, []types.Scope{types.ScopeSystem}, "/defs/CommonBackground/Agents/writer/systemPrompt.md")
	assert.False(t, ok)
}

func TestNewRequiresSyncers(t *testing.T) {
	_, err := New(Config{Layout: definition.NewLayout(t.TempDir())})
	assert.Error(t, err)
}

func TestWatcherSyncsChangedAgent(t *testing.T) {
	tmpDir := t.TempDir()
	database, err := store.Open("file:" + filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema(context.Background()))

	rcfg := reconcile.Config{DB: database, Layout: definition.NewLayout(filepath.Join(tmpDir, "definitions"))}
	synced := make(chan Target, 16)

	w, err := New(Config{
		Layout:    rcfg.Layout,
		Agents:    reconcile.NewAgentSyncer(rcfg),
		Workflows: reconcile.NewWorkflowSyncer(rcfg),
		Scopes:    []types.Scope{types.ScopeSystem},
		Debounce:  50 * time.Millisecond,
		OnSync: func(target Target, err error) {
			if err == nil {
				synced <- target
			}
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	agentsDir, err := rcfg.Layout.Dir(types.ScopeSystem, types.KindAgent)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := os.Stat(agentsDir)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	// Give Run time to register the kind directory watch.
	time.Sleep(100 * time.Millisecond)

	dir := filepath.Join(agentsDir, "planner")
	require.NoError(t, os.Mkdir(dir, 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, definition.SchemaFile),
		[]byte(`{"agentId": "agent-1", "description": "Plans"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, definition.PromptFile), []byte("You plan."), 0644))

	select {
	case target := <-synced:
		assert.Equal(t, Target{types.ScopeSystem, types.KindAgent, "planner"}, target)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sync")
	}

	require.Eventually(t, func() bool {
		agent, err := database.GetAgent(context.Background(), types.ScopeSystem, "agent-1")
		return err == nil && agent.SystemPrompt == "You plan."
	}, 5*time.Second, 20*time.Millisecond)
}
