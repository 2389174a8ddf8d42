package main

import (
	"errors"
	"io/fs"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ccrm-agents/ccsync/internal/config"
	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/store"
)

// hintsFor returns troubleshooting tips for the class of err.
func hintsFor(err error) []string {
	var hints []string
	var connErr *pgconn.ConnectError

	switch {
	case errors.Is(err, config.ErrConfiguration):
		hints = append(hints,
			"Set database_url in ccsync.yaml, or export CCSYNC_DATABASE_URL or PG_DATABASE_URL",
			"Check that "+config.EnvFile+" exists and is properly configured",
		)
	case errors.As(err, &connErr):
		hints = append(hints,
			"Check that PostgreSQL is running and reachable",
			"Verify the credentials in the database URL",
		)
	case errors.Is(err, reconcile.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		hints = append(hints,
			"Check that the definition exists under "+definitionsRoot(),
			"Check the name and --scope; list stored items with 'ccsync agent list' or 'ccsync workflow list'",
		)
	case errors.Is(err, reconcile.ErrDanglingReference):
		hints = append(hints,
			"Sync the referenced agent first with 'ccsync agent sync <name> --scope <scope>'",
			"Or run 'ccsync sync-all', which syncs agents before workflows",
		)
	case errors.Is(err, reconcile.ErrAmbiguousReference):
		hints = append(hints, "The id exists in more than one scope; give each agent a unique agentId")
	case errors.Is(err, reconcile.ErrAssociationExists):
		hints = append(hints, "Re-run with --force to remove the associations and delete the tool")
	case errors.Is(err, reconcile.ErrAlreadyExists):
		hints = append(hints, "Choose another name, or sync the existing definition instead")
	case errors.Is(err, reconcile.ErrInvalidDefinition):
		hints = append(hints, "Fix the definition file; 'ccsync workflow validate' reports graph problems")
	case errors.Is(err, store.ErrConstraint):
		hints = append(hints, "A referenced row is missing or a name is taken in the scope")
	case errors.Is(err, fs.ErrPermission):
		hints = append(hints, "Check file permissions of "+definitionsRoot())
	default:
		return nil
	}

	if cfg != nil && cfg.LogFile != "" {
		hints = append(hints, "See the log file for details: "+cfg.LogFile)
	}
	return hints
}

func definitionsRoot() string {
	if cfg != nil && cfg.DefinitionsDir != "" {
		return cfg.DefinitionsDir + "/"
	}
	return "definitions/"
}
