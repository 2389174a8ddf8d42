package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/ccrm-agents/ccsync/internal/definition"
	"github.com/ccrm-agents/ccsync/internal/store"
	"github.com/ccrm-agents/ccsync/internal/types"
)

// DefaultModel is the model stored for agents that do not name one.
const DefaultModel = "gpt-4"

// Config carries what every reconciler needs.
//
// The database connection must be open and have its schema created before
// it is passed in. A nil Logger discards log output.
type Config struct {
	DB           *store.DB
	Layout       definition.Layout
	Logger       *zap.Logger
	DefaultModel string
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel
	}
	return c
}

func checkScope(scope types.Scope) error {
	if !scope.IsValid() {
		return fmt.Errorf("invalid scope: %q", scope)
	}
	return nil
}

// notFound converts missing-directory and missing-row errors into a
// NotFoundError and passes everything else through.
func notFound(err error, kind, name string, scope types.Scope) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Kind: kind, Name: name, Scope: scope}
	}
	return err
}

// resolveAgent finds the scope holding agentID.
func resolveAgent(ctx context.Context, q *store.Queries, agentID, nodeID string) (types.Scope, error) {
	scope, err := q.Resolve(ctx, types.KindAgent, agentID)
	switch {
	case err == nil:
		return scope, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", &DanglingReferenceError{AgentID: agentID, NodeID: nodeID}
	case errors.Is(err, store.ErrAmbiguous):
		return "", fmt.Errorf("%w: %w", ErrAmbiguousReference, err)
	default:
		return "", err
	}
}
