package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ccrm-agents/ccsync/internal/types"
)

// Resolve finds the scope holding the resource of kind with id. Scopes are
// searched in types.AllScopes order.
//
// Returns sql.ErrNoRows when no scope holds the id, and an error wrapping
// ErrAmbiguous when more than one does.
func (q *Queries) Resolve(ctx context.Context, kind types.ResourceKind, id string) (types.Scope, error) {
	var found []types.Scope
	for _, scope := range types.AllScopes {
		table, err := TableFor(scope, kind)
		if err != nil {
			return "", err
		}
		var n int
		if err := q.get(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, table), id); err != nil {
			return "", fmt.Errorf("failed to resolve %s %s: %w", kind, id, err)
		}
		if n > 0 {
			found = append(found, scope)
		}
	}

	switch len(found) {
	case 0:
		return "", sql.ErrNoRows
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: %s %s exists in %v", ErrAmbiguous, kind, id, found)
	}
}
