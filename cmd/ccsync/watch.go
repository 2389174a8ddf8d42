package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/types"
	"github.com/ccrm-agents/ccsync/internal/ui"
	"github.com/ccrm-agents/ccsync/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Re-sync definitions to the database as their files change",
	Long: `Sync the definition tree once, then watch it and re-sync each agent or
workflow whose files change. Runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		scopes := types.ScopesOrAll(scopeFlag(cmd))
		debounce, _ := cmd.Flags().GetDuration("debounce")
		skipInitial, _ := cmd.Flags().GetBool("no-initial-sync")

		s := openSession(cmd)
		defer s.Close()

		if !skipInitial {
			res, err := reconcile.NewBatch(s.rcfg).SyncAll(cmd.Context(), scopes)
			if err != nil {
				fail(err)
			}
			printBatch("Agents", res.Agents)
			printBatch("Workflows", res.Workflows)
		}

		w, err := watch.New(watch.Config{
			Layout:    s.rcfg.Layout,
			Agents:    reconcile.NewAgentSyncer(s.rcfg),
			Workflows: reconcile.NewWorkflowSyncer(s.rcfg),
			Scopes:    scopes,
			Debounce:  debounce,
			Logger:    logger,
			OnSync: func(target watch.Target, err error) {
				switch {
				case err == nil:
					fmt.Printf("%s %s\n", ui.RenderPass("✓"), target)
				case errors.Is(err, reconcile.ErrNotFound):
					// Half-written or removed; the next change re-queues it.
				default:
					fmt.Printf("%s %s: %v\n", ui.RenderFail("✗"), target, err)
				}
			},
		})
		if err != nil {
			fail(err)
		}

		fmt.Printf("\n%s Watching %s (Ctrl+C to stop)\n", ui.RenderAccent("👀"), s.rcfg.Layout.Root)
		if err := w.Run(cmd.Context()); err != nil {
			fail(err)
		}
	},
}

func init() {
	addScopeFlag(watchCmd, false)
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a changed definition is synced")
	watchCmd.Flags().Bool("no-initial-sync", false, "skip the full sync at startup")
	rootCmd.AddCommand(watchCmd)
}
