package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/types"
	"github.com/ccrm-agents/ccsync/internal/ui"
)

var agentCmd = &cobra.Command{
	Use:     "agent",
	GroupID: "manage",
	Short:   "Manage agent definitions",
}

var agentCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an agent in the database and write its definition",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)
		description, _ := cmd.Flags().GetString("description")
		prompt, _ := cmd.Flags().GetString("prompt")

		s := openSession(cmd)
		defer s.Close()

		id, err := reconcile.NewAgentSyncer(s.rcfg).Create(cmd.Context(), args[0], scope, description, prompt)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Created agent %s in %s (ID: %s)\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), scope, id)
	},
}

var agentSyncCmd = &cobra.Command{
	Use:   "sync <name>",
	Short: "Sync one agent between its definition and the database",
	Long: `Sync one agent.

  --direction to    read the local definition and upsert the database row (default)
  --direction from  overwrite the local definition with the database row`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)
		direction, _ := cmd.Flags().GetString("direction")

		s := openSession(cmd)
		defer s.Close()
		agents := reconcile.NewAgentSyncer(s.rcfg)

		switch strings.ToLower(direction) {
		case "to", "to-db":
			res, err := agents.SyncToDB(cmd.Context(), args[0], scope)
			if err != nil {
				fail(err)
			}
			emit(res, func() {
				fmt.Printf("%s Synced agent %s to database (ID: %s)\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), res.ID)
				printToolSync(res.Tools)
			})
		case "from", "from-db":
			id, err := agents.SyncFromDB(cmd.Context(), args[0], scope)
			if err != nil {
				fail(err)
			}
			fmt.Printf("%s Wrote agent %s from database (ID: %s)\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), id)
		default:
			fail(fmt.Errorf("invalid direction %q (want to or from)", direction))
		}
	},
}

func printToolSync(res *reconcile.ToolSyncResult) {
	if res == nil {
		return
	}
	fmt.Printf("   Tools: %d added, %d removed\n", len(res.Added), len(res.Removed))
	for _, s := range res.Skipped {
		fmt.Printf("   %s skipped %s\n", ui.RenderWarn("⚠"), s)
	}
	for _, f := range res.Failed {
		fmt.Printf("   %s %s\n", ui.RenderWarn("⚠"), f)
	}
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored agents",
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)

		s := openSession(cmd)
		defer s.Close()

		agents, err := reconcile.NewAgentSyncer(s.rcfg).List(cmd.Context(), scope)
		if err != nil {
			fail(err)
		}
		emit(agents, func() {
			if len(agents) == 0 {
				fmt.Println("No agents found")
				return
			}
			fmt.Printf("%s\n", ui.RenderHeader(fmt.Sprintf("Agents (%d)", len(agents))))
			for _, a := range agents {
				fmt.Printf("  %-30s %-18s %s  %s\n", ui.RenderAccent(a.Name), a.Scope, a.ID, ui.RenderMuted(orNone(a.Model)))
			}
		})
	},
}

var agentDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an agent from the database and remove its definition",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)

		s := openSession(cmd)
		defer s.Close()

		deleted, err := reconcile.NewAgentSyncer(s.rcfg).Delete(cmd.Context(), args[0], scope)
		if err != nil {
			fail(err)
		}
		if !deleted {
			fail(&reconcile.NotFoundError{Kind: "agent", Name: args[0], Scope: scope})
		}
		fmt.Printf("%s Deleted agent %s from %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), scope)
	},
}

var agentSyncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Sync every agent definition to the database",
	Run: func(cmd *cobra.Command, args []string) {
		scopes := types.ScopesOrAll(scopeFlag(cmd))

		s := openSession(cmd)
		defer s.Close()

		res, err := reconcile.NewBatch(s.rcfg).SyncAllAgents(cmd.Context(), scopes)
		emit(res, func() { printBatch("Agents", res) })
		if err != nil {
			fail(err)
		}
	},
}

var agentToolsCmd = &cobra.Command{
	Use:   "tools <name>",
	Short: "List the tools associated with an agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)

		s := openSession(cmd)
		defer s.Close()

		tools, err := reconcile.NewAgentSyncer(s.rcfg).Tools(cmd.Context(), args[0], scope)
		if err != nil {
			fail(err)
		}
		emit(tools, func() {
			if len(tools) == 0 {
				fmt.Printf("Agent %s has no tools\n", args[0])
				return
			}
			printTools(tools)
		})
	},
}

func init() {
	agentCreateCmd.Flags().StringP("description", "d", "", "agent description")
	agentCreateCmd.Flags().String("prompt", "", "system prompt (default: a generic assistant prompt)")
	agentSyncCmd.Flags().String("direction", "to", "sync direction: to (database) or from (database)")

	for _, c := range []*cobra.Command{agentCreateCmd, agentSyncCmd, agentDeleteCmd, agentToolsCmd} {
		addScopeFlag(c, true)
	}
	for _, c := range []*cobra.Command{agentListCmd, agentSyncAllCmd} {
		addScopeFlag(c, false)
	}

	agentCmd.AddCommand(agentCreateCmd, agentSyncCmd, agentListCmd, agentDeleteCmd, agentSyncAllCmd, agentToolsCmd)
	rootCmd.AddCommand(agentCmd)
}
