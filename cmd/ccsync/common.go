package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ccrm-agents/ccsync/internal/definition"
	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/store"
	"github.com/ccrm-agents/ccsync/internal/types"
	"github.com/ccrm-agents/ccsync/internal/ui"
)

// session is the storage a single command works against.
type session struct {
	db   *store.DB
	rcfg reconcile.Config
}

// openSession opens the database, applies the schema and exits on failure.
func openSession(cmd *cobra.Command) *session {
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		fail(err)
	}
	if err := db.InitSchema(cmd.Context()); err != nil {
		_ = db.Close()
		fail(fmt.Errorf("failed to initialize schema: %w", err))
	}

	active = &session{
		db: db,
		rcfg: reconcile.Config{
			DB:           db,
			Layout:       definition.NewLayout(cfg.DefinitionsDir),
			Logger:       logger,
			DefaultModel: cfg.DefaultModel,
		},
	}
	return active
}

// active is the session opened by the running command, closed by fail
// since os.Exit skips deferred calls.
var active *session

func (s *session) Close() {
	_ = s.db.Close()
	if active == s {
		active = nil
	}
}

// releaseSession closes the running command's session, if any.
func releaseSession() {
	if active != nil {
		active.Close()
	}
}

var (
	opName  string
	opStart time.Time
)

// logOp records the start of the running command.
func logOp(cmd *cobra.Command, args []string) {
	opName, opStart = cmd.CommandPath(), time.Now()
	logger.Info("operation started", zap.String("operation", opName), zap.Strings("args", args))
}

// logOpDone records the successful end of the running command.
func logOpDone() {
	if opName == "" {
		return
	}
	logger.Info("operation succeeded", zap.String("operation", opName), zap.Duration("elapsed", time.Since(opStart)))
}

// fail reports err and exits with status 1.
func fail(err error) {
	// Info keeps the failure out of the console sink; reportError prints it.
	logger.Info("operation failed", zap.String("operation", opName), zap.Error(err))
	reportError(err)
	releaseSession()
	closeLog()
	os.Exit(1)
}

// reportError prints err with troubleshooting hints chosen by its class.
func reportError(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), err)
	if hints := hintsFor(err); len(hints) > 0 {
		fmt.Fprintf(os.Stderr, "\n%s\n", ui.RenderMuted("Troubleshooting:"))
		for _, hint := range hints {
			fmt.Fprintf(os.Stderr, "   • %s\n", hint)
		}
	}
}

// addScopeFlag registers --scope. required commands reject an empty scope.
func addScopeFlag(cmd *cobra.Command, required bool) {
	usage := "scope: SYSTEM or COMMON_BACKGROUND (default: all scopes)"
	if required {
		usage = "scope: SYSTEM or COMMON_BACKGROUND"
	}
	cmd.Flags().StringP("scope", "s", "", usage)
	if required {
		_ = cmd.MarkFlagRequired("scope")
	}
}

// scopeFlag parses --scope; empty means every scope.
func scopeFlag(cmd *cobra.Command) types.Scope {
	raw, _ := cmd.Flags().GetString("scope")
	if raw == "" {
		return ""
	}
	scope, err := types.ParseScope(raw)
	if err != nil {
		fail(err)
	}
	return scope
}

// emit prints v in the selected structured format, or calls text.
func emit(v any, text func()) {
	if outputFormat.Structured() {
		if err := ui.Encode(os.Stdout, outputFormat, v); err != nil {
			fail(err)
		}
		return
	}
	text()
}

// confirm asks a yes/no question. Without a terminal it refuses.
func confirm(title, description string) bool {
	if !ui.IsInputTerminal() {
		return false
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false
	}
	return ok
}

// printBatch prints a batch result and its error list.
func printBatch(label string, res *reconcile.BatchResult) {
	if res == nil {
		return
	}
	fmt.Printf("%s %s: %d synced, %d failed\n", ui.RenderPass("✓"), label, len(res.Success), len(res.Errors))
	for _, s := range res.Success {
		fmt.Printf("   %s\n", s)
	}
	if len(res.Errors) > 0 {
		fmt.Printf("\n%s Failed %s:\n", ui.RenderWarn("⚠"), strings.ToLower(label))
		for _, e := range res.Errors {
			fmt.Printf("   %s\n", e)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return ui.RenderMuted("-")
	}
	return s
}
