package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrm-agents/ccsync/internal/config"
	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/store"
)

func TestHintsFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"configuration", &config.ConfigurationError{Key: config.KeyDatabaseURL, Reason: "not set"}, "PG_DATABASE_URL"},
		{"not found", &reconcile.NotFoundError{Kind: "agent", Name: "planner"}, "definition exists"},
		{"dangling", fmt.Errorf("failed to sync workflow wf: %w", &reconcile.DanglingReferenceError{AgentID: "a", NodeID: "n"}), "sync-all"},
		{"association", &reconcile.AssociationExistsError{ToolID: "t", Count: 2}, "--force"},
		{"ambiguous", fmt.Errorf("agent x: %w", reconcile.ErrAmbiguousReference), "more than one scope"},
		{"constraint", fmt.Errorf("%w: boom", store.ErrConstraint), "referenced row"},
		{"connection", &pgconn.ConnectError{}, "PostgreSQL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hints := hintsFor(tt.err)
			require.NotEmpty(t, hints)
			assert.Contains(t, strings.Join(hints, "\n"), tt.want)
		})
	}

	assert.Empty(t, hintsFor(errors.New("something else")))
}

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"agent":    {"create", "sync", "list", "delete", "sync-all", "tools"},
		"workflow": {"create", "sync", "list", "delete", "sync-all", "validate", "agents", "referenced-by", "add-node", "add-edge"},
		"tool":     {"create", "update", "get", "list", "delete", "orphaned", "cleanup"},
		"db":       {"init", "reset"},
	}

	for parent, children := range want {
		cmd, _, err := rootCmd.Find([]string{parent})
		require.NoError(t, err, parent)
		require.Equal(t, parent, cmd.Name())
		for _, child := range children {
			sub, _, err := rootCmd.Find([]string{parent, child})
			require.NoError(t, err, parent+" "+child)
			assert.Equal(t, child, sub.Name(), parent+" "+child)
		}
	}

	for _, name := range []string{"sync-all", "watch", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestScopeFlags(t *testing.T) {
	sync, _, err := rootCmd.Find([]string{"agent", "sync"})
	require.NoError(t, err)
	flag := sync.Flags().Lookup("scope")
	require.NotNil(t, flag)
	assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])

	list, _, err := rootCmd.Find([]string{"agent", "list"})
	require.NoError(t, err)
	require.NotNil(t, list.Flags().Lookup("scope"))
	assert.Empty(t, list.Flags().Lookup("scope").Annotations)
}

func TestReleaseSessionClosesActiveSession(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	tmpDir := t.TempDir()
	cfg = &config.Config{
		DatabaseURL:    "file:" + filepath.Join(tmpDir, "test.db"),
		DefinitionsDir: filepath.Join(tmpDir, "definitions"),
	}

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	s := openSession(cmd)
	require.Same(t, s, active)
	require.NoError(t, s.db.InitSchema(context.Background()))

	releaseSession()
	assert.Nil(t, active)
	_, err := s.db.ListTools(context.Background())
	assert.Error(t, err, "database should be closed")

	// A second release is a no-op.
	releaseSession()
	assert.Nil(t, active)
}
