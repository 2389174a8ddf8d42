package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ccrm-agents/ccsync/internal/reconcile"
	"github.com/ccrm-agents/ccsync/internal/types"
	"github.com/ccrm-agents/ccsync/internal/ui"
)

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	GroupID: "manage",
	Short:   "Manage workflow definitions",
}

var workflowCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a workflow with a single ROUTER entrypoint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)
		id, _ := cmd.Flags().GetString("id")
		description, _ := cmd.Flags().GetString("description")
		if id == "" {
			id = uuid.NewString()
		}

		s := openSession(cmd)
		defer s.Close()

		if _, err := reconcile.NewWorkflowSyncer(s.rcfg).Create(cmd.Context(), id, args[0], scope, description); err != nil {
			fail(err)
		}
		fmt.Printf("%s Created workflow %s in %s (ID: %s)\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), scope, id)
	},
}

var workflowSyncCmd = &cobra.Command{
	Use:   "sync <id>",
	Short: "Sync one workflow between its definition and the database",
	Long: `Sync one workflow.

  --direction to    replace the stored workflow graph with workflow.json (default)
  --direction from  write workflow.json from the stored rows`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)
		direction, _ := cmd.Flags().GetString("direction")

		s := openSession(cmd)
		defer s.Close()
		workflows := reconcile.NewWorkflowSyncer(s.rcfg)

		switch strings.ToLower(direction) {
		case "to", "to-db":
			id, err := workflows.SyncToDB(cmd.Context(), args[0], scope)
			if err != nil {
				fail(err)
			}
			fmt.Printf("%s Synced workflow %s to database\n", ui.RenderPass("✓"), ui.RenderAccent(id))
		case "from", "from-db":
			id, err := workflows.SyncFromDB(cmd.Context(), args[0], scope)
			if err != nil {
				fail(err)
			}
			fmt.Printf("%s Wrote workflow %s from database\n", ui.RenderPass("✓"), ui.RenderAccent(id))
		default:
			fail(fmt.Errorf("invalid direction %q (want to or from)", direction))
		}
	},
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored workflows",
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)

		s := openSession(cmd)
		defer s.Close()

		workflows, err := reconcile.NewWorkflowSyncer(s.rcfg).List(cmd.Context(), scope)
		if err != nil {
			fail(err)
		}
		emit(workflows, func() { printWorkflows(workflows) })
	},
}

func printWorkflows(workflows []types.Workflow) {
	if len(workflows) == 0 {
		fmt.Println("No workflows found")
		return
	}
	fmt.Printf("%s\n", ui.RenderHeader(fmt.Sprintf("Workflows (%d)", len(workflows))))
	for _, w := range workflows {
		fmt.Printf("  %-30s %-18s %s\n", ui.RenderAccent(w.Name), w.Scope, w.ID)
	}
}

var workflowDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a workflow from the database and remove its definition",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)

		s := openSession(cmd)
		defer s.Close()

		deleted, err := reconcile.NewWorkflowSyncer(s.rcfg).Delete(cmd.Context(), args[0], scope)
		if err != nil {
			fail(err)
		}
		if !deleted {
			fail(&reconcile.NotFoundError{Kind: "workflow", Name: args[0], Scope: scope})
		}
		fmt.Printf("%s Deleted workflow %s from %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]), scope)
	},
}

var workflowSyncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Sync every workflow definition to the database",
	Run: func(cmd *cobra.Command, args []string) {
		scopes := types.ScopesOrAll(scopeFlag(cmd))

		s := openSession(cmd)
		defer s.Close()

		res, err := reconcile.NewBatch(s.rcfg).SyncAllWorkflows(cmd.Context(), scopes)
		emit(res, func() { printBatch("Workflows", res) })
		if err != nil {
			fail(err)
		}
	},
}

var workflowValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Check a stored workflow graph",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)

		s := openSession(cmd)
		defer s.Close()

		report, err := reconcile.NewWorkflowSyncer(s.rcfg).Validate(cmd.Context(), args[0], scope)
		if err != nil {
			fail(err)
		}
		emit(report, func() {
			if report.Valid {
				fmt.Printf("%s Workflow %s is valid (%d nodes, %d edges)\n",
					ui.RenderPass("✓"), ui.RenderAccent(args[0]), len(report.Nodes), len(report.Edges))
			} else {
				fmt.Printf("%s Workflow %s is invalid\n", ui.RenderFail("✗"), ui.RenderAccent(args[0]))
			}
			for _, e := range report.Errors {
				fmt.Printf("   %s %s\n", ui.RenderFail("✗"), e)
			}
			for _, w := range report.Warnings {
				fmt.Printf("   %s %s\n", ui.RenderWarn("⚠"), w)
			}
		})
		if !report.Valid {
			s.Close()
			closeLog()
			os.Exit(1)
		}
	},
}

var workflowAgentsCmd = &cobra.Command{
	Use:   "agents <id>",
	Short: "List the agents a workflow's nodes use",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)

		s := openSession(cmd)
		defer s.Close()

		agents, err := reconcile.NewWorkflowSyncer(s.rcfg).WorkflowAgents(cmd.Context(), args[0], scope)
		if err != nil {
			fail(err)
		}
		emit(agents, func() {
			if len(agents) == 0 {
				fmt.Printf("Workflow %s uses no agents\n", args[0])
				return
			}
			fmt.Printf("%s\n", ui.RenderHeader(fmt.Sprintf("Agents used by %s (%d)", args[0], len(agents))))
			for _, a := range agents {
				fmt.Printf("  %-30s %-18s %s\n", ui.RenderAccent(a.Name), a.Scope, a.ID)
			}
		})
	},
}

var workflowReferencedByCmd = &cobra.Command{
	Use:   "referenced-by <agent-id>",
	Short: "List the workflows whose nodes use an agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openSession(cmd)
		defer s.Close()

		workflows, err := reconcile.NewWorkflowSyncer(s.rcfg).AgentWorkflows(cmd.Context(), args[0])
		if err != nil {
			fail(err)
		}
		emit(workflows, func() { printWorkflows(workflows) })
	},
}

var workflowAddNodeCmd = &cobra.Command{
	Use:   "add-node <workflow-id> <node-name>",
	Short: "Add a node to a workflow and sync it",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)
		nodeType, _ := cmd.Flags().GetString("type")
		agentID, _ := cmd.Flags().GetString("agent")

		s := openSession(cmd)
		defer s.Close()

		id, err := reconcile.NewWorkflowSyncer(s.rcfg).AddNode(cmd.Context(), args[0], scope, reconcile.NodeSpec{
			Name:     args[1],
			NodeType: strings.ToUpper(nodeType),
			AgentID:  agentID,
		})
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Added node %s to %s (ID: %s)\n", ui.RenderPass("✓"), ui.RenderAccent(args[1]), args[0], id)
	},
}

var workflowAddEdgeCmd = &cobra.Command{
	Use:   "add-edge <workflow-id> <source-node-id> [target-node-id]",
	Short: "Add an edge to a workflow and sync it",
	Long: `Add an edge between two nodes of a workflow. Omitting the target makes a
terminal edge.`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		scope := scopeFlag(cmd)
		condition, _ := cmd.Flags().GetString("condition")
		value, _ := cmd.Flags().GetString("value")

		spec := reconcile.EdgeSpec{
			Source:         args[1],
			ConditionType:  strings.ToUpper(condition),
			ConditionValue: value,
		}
		if len(args) == 3 {
			spec.Target = args[2]
		}

		s := openSession(cmd)
		defer s.Close()

		id, err := reconcile.NewWorkflowSyncer(s.rcfg).AddEdge(cmd.Context(), args[0], scope, spec)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%s Added edge %s to %s\n", ui.RenderPass("✓"), ui.RenderAccent(id), args[0])
	},
}

func init() {
	workflowCreateCmd.Flags().String("id", "", "workflow id (default: a new UUID)")
	workflowCreateCmd.Flags().StringP("description", "d", "", "workflow description")
	workflowSyncCmd.Flags().String("direction", "to", "sync direction: to (database) or from (database)")
	workflowAddNodeCmd.Flags().String("type", types.NodeTypeAgent, "node type")
	workflowAddNodeCmd.Flags().String("agent", "", "id of the agent the node invokes")
	workflowAddEdgeCmd.Flags().String("condition", types.ConditionAlways, "condition type")
	workflowAddEdgeCmd.Flags().String("value", "", "condition value")

	for _, c := range []*cobra.Command{workflowCreateCmd, workflowSyncCmd, workflowDeleteCmd, workflowValidateCmd,
		workflowAgentsCmd, workflowAddNodeCmd, workflowAddEdgeCmd} {
		addScopeFlag(c, true)
	}
	for _, c := range []*cobra.Command{workflowListCmd, workflowSyncAllCmd} {
		addScopeFlag(c, false)
	}

	workflowCmd.AddCommand(workflowCreateCmd, workflowSyncCmd, workflowListCmd, workflowDeleteCmd, workflowSyncAllCmd,
		workflowValidateCmd, workflowAgentsCmd, workflowReferencedByCmd, workflowAddNodeCmd, workflowAddEdgeCmd)
	rootCmd.AddCommand(workflowCmd)
}
