package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/types"
	"github.com/ccrm-agents/ccsync/internal/ui"
)

var syncAllCmd = &cobra.Command{
	Use:     "sync-all",
	GroupID: "sync",
	Short:   "Sync every agent, then every workflow, to the database",
	Long: `Sync the whole definition tree to the database.

Agents are synced first so workflow nodes can reference agents synced in the
same run. A definition that fails is listed and the run continues; the
command exits 0 unless the tree itself cannot be read.`,
	Run: func(cmd *cobra.Command, args []string) {
		scopes := types.ScopesOrAll(scopeFlag(cmd))

		s := openSession(cmd)
		defer s.Close()

		fmt.Printf("%s Syncing %s...\n", ui.RenderAccent("🔄"), s.rcfg.Layout.Root)
		start := time.Now()

		res, err := reconcile.NewBatch(s.rcfg).SyncAll(cmd.Context(), scopes)
		emit(res, func() {
			printBatch("Agents", res.Agents)
			printBatch("Workflows", res.Workflows)
			fmt.Printf("\nDone in %v\n", time.Since(start).Round(time.Millisecond))
		})
		if err != nil {
			fail(err)
		}
	},
}

func init() {
	addScopeFlag(syncAllCmd, false)
	rootCmd.AddCommand(syncAllCmd)
}
